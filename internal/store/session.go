package store

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/qttmesh/core/internal/errs"
	"github.com/qttmesh/core/internal/keys"
)

const (
	sessionClean      = "1"
	sessionPersistent = "0"
)

// UpdateConnectedNode records that clientID is now hosted on node. The two
// writes are independent, best-effort, and dispatched concurrently; the
// caller is expected to invoke this only after the front-end has already
// taken ownership of the session, so eventual consistency of invariant 1
// (presence pairing) is acceptable.
func (s *Store) UpdateConnectedNode(ctx context.Context, clientID, node string) *FutureSet {
	fs := NewFutureSet()
	fs.Add("sadd connected_clients", func() error {
		return s.rdb.SAdd(ctx, keys.ConnectedClients(node), clientID).Err()
	})
	fs.Add("set connected_node", func() error {
		return s.rdb.Set(ctx, keys.ConnectedNode(clientID), node, 0).Err()
	})
	return fs
}

// RemoveConnectedNode releases clientID's presence on node. The reverse
// pointer connected_node(clientId) is released only if it still names node
// (via CHECKDEL), so a disconnect racing a newer CONNECT on another node
// cannot clobber the newer binding.
func (s *Store) RemoveConnectedNode(ctx context.Context, clientID, node string) error {
	fs := NewFutureSet()
	fs.Add("srem connected_clients", func() error {
		return s.rdb.SRem(ctx, keys.ConnectedClients(node), clientID).Err()
	})
	fs.Add("checkdel connected_node", func() error {
		_, err := s.CheckDel(ctx, keys.ConnectedNode(clientID), node)
		return err
	})
	if err := fs.Await(); err != nil {
		return errs.New(errs.Transport, "store.RemoveConnectedNode", err)
	}
	return nil
}

// GetConnectedNode returns the node currently hosting clientID, and false if
// no node is recorded.
func (s *Store) GetConnectedNode(ctx context.Context, clientID string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, keys.ConnectedNode(clientID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.New(errs.Transport, "store.GetConnectedNode", err)
	}
	return v, true, nil
}

// ScanConnectedClients performs one cursor-bounded SSCAN page over node's
// presence set.
func (s *Store) ScanConnectedClients(ctx context.Context, node string, cursor uint64, count int64) ([]string, uint64, error) {
	members, next, err := s.rdb.SScan(ctx, keys.ConnectedClients(node), cursor, "", count).Result()
	if err != nil {
		return nil, 0, errs.New(errs.Transport, "store.ScanConnectedClients", err)
	}
	return members, next, nil
}

// GetSession returns the session flag: clean=true, persistent=false, and ok=false if absent.
func (s *Store) GetSession(ctx context.Context, clientID string) (clean bool, ok bool, err error) {
	v, err := s.rdb.Get(ctx, keys.Session(clientID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, errs.New(errs.Transport, "store.GetSession", err)
	}
	return v == sessionClean, true, nil
}

// UpdateSession sets the session flag.
func (s *Store) UpdateSession(ctx context.Context, clientID string, clean bool) error {
	v := sessionPersistent
	if clean {
		v = sessionClean
	}
	if err := s.rdb.Set(ctx, keys.Session(clientID), v, 0).Err(); err != nil {
		return errs.New(errs.Transport, "store.UpdateSession", err)
	}
	return nil
}

// RemoveSession deletes the session flag only.
func (s *Store) RemoveSession(ctx context.Context, clientID string) error {
	if err := s.rdb.Del(ctx, keys.Session(clientID)).Err(); err != nil {
		return errs.New(errs.Transport, "store.RemoveSession", err)
	}
	return nil
}

// RemoveAllSessionState tears down everything a clean-session DISCONNECT
// must purge: the session flag, every subscription, the QoS2 dedup set, and
// every in-flight record.
func (s *Store) RemoveAllSessionState(ctx context.Context, clientID string) error {
	fs := NewFutureSet()
	fs.Add("remove session", func() error { return s.RemoveSession(ctx, clientID) })
	fs.Add("remove all subscriptions", func() error { return s.RemoveAllSubscriptions(ctx, clientID) })
	fs.Add("clear qos2", func() error { return s.ClearQoS2(ctx, clientID) })
	fs.Add("clear all in-flight", func() error { return s.ClearAllInFlight(ctx, clientID) })
	return fs.Await()
}

// NextPacketID allocates the next packet id for clientID, wrapping to 1 after
// the configured limit (65535 by default). MQTT reserves 0, so the allocator
// never produces it.
func (s *Store) NextPacketID(ctx context.Context, clientID string) (uint16, error) {
	v, err := s.IncrLimit(ctx, keys.NextPacketID(clientID), s.packetIDLimit)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// AddQoS2MessageId records packetID in the client's inbound QoS2 dedup set.
// It returns true if the id was newly added, false if it was already present.
func (s *Store) AddQoS2MessageId(ctx context.Context, clientID string, packetID uint16) (bool, error) {
	n, err := s.rdb.SAdd(ctx, keys.QoS2Set(clientID), packetID).Result()
	if err != nil {
		return false, errs.New(errs.Transport, "store.AddQoS2MessageId", err)
	}
	return n == 1, nil
}

// RemoveQoS2MessageId removes packetID from the dedup set on PUBREL. It
// returns true if the id was present and removed.
func (s *Store) RemoveQoS2MessageId(ctx context.Context, clientID string, packetID uint16) (bool, error) {
	n, err := s.rdb.SRem(ctx, keys.QoS2Set(clientID), packetID).Result()
	if err != nil {
		return false, errs.New(errs.Transport, "store.RemoveQoS2MessageId", err)
	}
	return n == 1, nil
}

// ClearQoS2 deletes the entire dedup set for clientID.
func (s *Store) ClearQoS2(ctx context.Context, clientID string) error {
	if err := s.rdb.Del(ctx, keys.QoS2Set(clientID)).Err(); err != nil {
		return errs.New(errs.Transport, "store.ClearQoS2", err)
	}
	return nil
}

// GetAllInFlightIds returns the ordered snapshot of in-flight packet ids.
func (s *Store) GetAllInFlightIds(ctx context.Context, clientID string) ([]uint16, error) {
	raw, err := s.rdb.LRange(ctx, keys.InFlightList(clientID), 0, -1).Result()
	if err != nil {
		return nil, errs.New(errs.Transport, "store.GetAllInFlightIds", err)
	}
	return parsePacketIDs(raw), nil
}

// GetInFlight reads a single in-flight record. ok is false if the record is
// absent (already acknowledged, or an orphan list entry).
func (s *Store) GetInFlight(ctx context.Context, clientID string, packetID uint16) (*InFlightRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, keys.InFlightMsg(clientID, packetID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New(errs.Transport, "store.GetInFlight", err)
	}
	rec, err := DecodeInFlightRecord(raw)
	if err != nil {
		s.log.LogInvariantDrift("store.GetInFlight", "dropping unparsable in-flight record")
		return nil, false, nil
	}
	return rec, true, nil
}

// AddInFlight writes the record and appends packetID to the ordered list.
func (s *Store) AddInFlight(ctx context.Context, clientID string, packetID uint16, rec *InFlightRecord) *FutureSet {
	fs := NewFutureSet()
	fs.Add("set in_flight_msg", func() error {
		return s.rdb.Set(ctx, keys.InFlightMsg(clientID, packetID), rec.Encode(), 0).Err()
	})
	fs.Add("rpush in_flight_list", func() error {
		return s.rdb.RPush(ctx, keys.InFlightList(clientID), packetID).Err()
	})
	return fs
}

// RemoveInFlight deletes the record and removes every occurrence of
// packetID from the list (duplicates would violate invariant 2 but are
// tolerated defensively).
func (s *Store) RemoveInFlight(ctx context.Context, clientID string, packetID uint16) *FutureSet {
	fs := NewFutureSet()
	fs.Add("del in_flight_msg", func() error {
		return s.rdb.Del(ctx, keys.InFlightMsg(clientID, packetID)).Err()
	})
	fs.Add("lrem in_flight_list", func() error {
		return s.rdb.LRem(ctx, keys.InFlightList(clientID), 0, packetID).Err()
	})
	return fs
}

// ClearAllInFlight drains the in-flight list head-first, then deletes the
// records of every popped id. The drain is bounded by the list length
// observed at entry so it terminates even if the list races with concurrent
// appends.
func (s *Store) ClearAllInFlight(ctx context.Context, clientID string) error {
	return s.drainList(ctx, keys.InFlightList(clientID), func(packetID uint16) string {
		return keys.InFlightMsg(clientID, packetID)
	})
}

// drainList repeatedly pops the head of listKey, bounded by the list length
// at entry, and then deletes the record named by recordKey(id) for every
// popped id concurrently. It is the shared
// iterative (not recursive) draining discipline used by ClearAllInFlight and
// ClearAllRetained.
func (s *Store) drainList(ctx context.Context, listKey string, recordKey func(uint16) string) error {
	n, err := s.rdb.LLen(ctx, listKey).Result()
	if err != nil {
		return errs.New(errs.Transport, "store.drainList", err)
	}

	ids := make([]uint16, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := s.rdb.LPop(ctx, listKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return errs.New(errs.Transport, "store.drainList", err)
		}
		id, convErr := strconv.ParseUint(v, 10, 16)
		if convErr != nil {
			continue
		}
		ids = append(ids, uint16(id))
	}

	fs := NewFutureSet()
	for _, id := range ids {
		id := id
		fs.Add("del "+recordKey(id), func() error {
			return s.rdb.Del(ctx, recordKey(id)).Err()
		})
	}
	return fs.Await()
}

func parsePacketIDs(raw []string) []uint16 {
	ids := make([]uint16, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			continue
		}
		ids = append(ids, uint16(id))
	}
	return ids
}
