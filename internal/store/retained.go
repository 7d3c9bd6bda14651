package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/qttmesh/core/internal/errs"
	"github.com/qttmesh/core/internal/keys"
)

// AddRetained appends a retained message record for the exact topic levels.
// The broker's retained-message policy is "keep all, not overwrite last":
// callers that want replace-on-publish semantics must call ClearAllRetained
// first, and callers that see RETAIN=1 with a zero-length payload must call
// ClearAllRetained instead of this method (MQTT 3.1.1's clear-retained rule).
func (s *Store) AddRetained(ctx context.Context, levels []string, packetID uint16, rec *RetainedRecord) *FutureSet {
	fs := NewFutureSet()
	fs.Add("set topic_retain_msg", func() error {
		return s.rdb.Set(ctx, keys.TopicRetainMsg(levels, packetID), rec.Encode(), 0).Err()
	})
	fs.Add("rpush topic_retain_list", func() error {
		return s.rdb.RPush(ctx, keys.TopicRetainList(levels), packetID).Err()
	})
	return fs
}

// GetRetainedList returns the ordered snapshot of retained packet ids for levels.
func (s *Store) GetRetainedList(ctx context.Context, levels []string) ([]uint16, error) {
	raw, err := s.rdb.LRange(ctx, keys.TopicRetainList(levels), 0, -1).Result()
	if err != nil {
		return nil, errs.New(errs.Transport, "store.GetRetainedList", err)
	}
	return parsePacketIDs(raw), nil
}

// GetRetained reads a single retained record. ok is false if absent.
func (s *Store) GetRetained(ctx context.Context, levels []string, packetID uint16) (*RetainedRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, keys.TopicRetainMsg(levels, packetID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New(errs.Transport, "store.GetRetained", err)
	}
	rec, err := DecodeInFlightRecord(raw)
	if err != nil {
		s.log.LogInvariantDrift("store.GetRetained", "dropping unparsable retained record")
		return nil, false, nil
	}
	return rec, true, nil
}

// ClearAllRetained drains the retained list for levels head-first and then
// deletes the records of every popped id, with the same bounded-drain
// discipline as ClearAllInFlight.
func (s *Store) ClearAllRetained(ctx context.Context, levels []string) error {
	return s.drainList(ctx, keys.TopicRetainList(levels), func(packetID uint16) string {
		return keys.TopicRetainMsg(levels, packetID)
	})
}
