package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/qttmesh/core/internal/errs"
	"github.com/qttmesh/core/internal/keys"
	"github.com/qttmesh/core/internal/topic"
)

// GetTopicSubscribers returns the clientId->QoS map for an exact topic_name
// or, if levels contains a wildcard, the topic_filter map for that filter.
func (s *Store) GetTopicSubscribers(ctx context.Context, levels []string) (map[string]byte, error) {
	key := keys.TopicName(levels)
	if topic.IsFilter(levels) {
		key = keys.TopicFilter(levels)
	}
	return s.hgetAllQoS(ctx, key)
}

// GetClientSubscriptions returns clientID's topic-string->QoS map.
func (s *Store) GetClientSubscriptions(ctx context.Context, clientID string) (map[string]byte, error) {
	return s.hgetAllQoS(ctx, keys.Subscription(clientID))
}

func (s *Store) hgetAllQoS(ctx context.Context, key string) (map[string]byte, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errs.New(errs.Transport, "store.hgetAllQoS", err)
	}
	out := make(map[string]byte, len(raw))
	for k, v := range raw {
		if len(v) != 1 || v[0] < '0' || v[0] > '2' {
			s.log.LogInvariantDrift("store.hgetAllQoS", "dropping entry with malformed QoS")
			continue
		}
		out[k] = v[0] - '0'
	}
	return out, nil
}

func qosString(qos byte) string {
	return string('0' + qos)
}

// UpdateSubscription records that clientID subscribes to levels at qos,
// overwriting any previously granted QoS. Trie counters for a wildcard
// filter are only incremented the first time this (clientId, filter) pair
// is subscribed — re-subscribing updates the granted QoS in place without
// drifting the refcounts (the Open Question in spec.md §9 resolved this way:
// gate counter updates on prior non-existence of the subscription entry).
func (s *Store) UpdateSubscription(ctx context.Context, clientID string, levels []string, qos byte) error {
	topicStr := topic.Join(levels)

	_, err := s.rdb.HGet(ctx, keys.Subscription(clientID), topicStr).Result()
	isNew := err == redis.Nil
	if err != nil && !isNew {
		return errs.New(errs.Transport, "store.UpdateSubscription", err)
	}

	fs := NewFutureSet()
	fs.Add("hset subscription", func() error {
		return s.rdb.HSet(ctx, keys.Subscription(clientID), topicStr, qosString(qos)).Err()
	})

	if topic.IsFilter(levels) {
		fs.Add("hset topic_filter", func() error {
			return s.rdb.HSet(ctx, keys.TopicFilter(levels), clientID, qosString(qos)).Err()
		})
		if isNew {
			for i := 0; i < len(levels); i++ {
				prefix, label := levels[0:i], levels[i]
				fs.Add("hincrby child", func() error {
					return s.rdb.HIncrBy(ctx, keys.TopicFilterChild(prefix), label, 1).Err()
				})
			}
			fs.Add("hincrby end", func() error {
				return s.rdb.HIncrBy(ctx, keys.TopicFilterChild(levels), keys.ChildEnd, 1).Err()
			})
		}
	} else {
		fs.Add("hset topic_name", func() error {
			return s.rdb.HSet(ctx, keys.TopicName(levels), clientID, qosString(qos)).Err()
		})
	}

	if err := fs.Await(); err != nil {
		return errs.New(errs.Transport, "store.UpdateSubscription", err)
	}
	return nil
}

// RemoveSubscription is the inverse of UpdateSubscription: it removes
// clientID's entry from subscription(clientId) and from the appropriate
// topic_name/topic_filter map, and for filters decrements every prefix
// counter it incremented, clamping at zero and logging an InvariantDrift if
// a counter would otherwise go negative.
func (s *Store) RemoveSubscription(ctx context.Context, clientID string, levels []string) error {
	topicStr := topic.Join(levels)

	fs := NewFutureSet()
	fs.Add("hdel subscription", func() error {
		return s.rdb.HDel(ctx, keys.Subscription(clientID), topicStr).Err()
	})

	if topic.IsFilter(levels) {
		fs.Add("hdel topic_filter", func() error {
			return s.rdb.HDel(ctx, keys.TopicFilter(levels), clientID).Err()
		})
		for i := 0; i < len(levels); i++ {
			prefix, label := levels[0:i], levels[i]
			fs.Add("decr child", func() error {
				return s.decrementClamped(ctx, keys.TopicFilterChild(prefix), label)
			})
		}
		fs.Add("decr end", func() error {
			return s.decrementClamped(ctx, keys.TopicFilterChild(levels), keys.ChildEnd)
		})
	} else {
		fs.Add("hdel topic_name", func() error {
			return s.rdb.HDel(ctx, keys.TopicName(levels), clientID).Err()
		})
	}

	if err := fs.Await(); err != nil {
		return errs.New(errs.Transport, "store.RemoveSubscription", err)
	}
	return nil
}

// decrementClamped decrements a trie counter field and, if that drives it
// negative, resets it to zero and reports an InvariantDrift. A negative
// counter should never happen if callers obey invariant 4, but concurrent
// interleavings on a non-transactional KVS are tolerated defensively.
func (s *Store) decrementClamped(ctx context.Context, key, field string) error {
	v, err := s.rdb.HIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		return err
	}
	if v < 0 {
		s.log.LogInvariantDrift("store.decrementClamped", "trie counter went negative, clamping to 0")
		return s.rdb.HSet(ctx, key, field, 0).Err()
	}
	return nil
}

// RemoveAllSubscriptions reads clientID's subscription snapshot, removes
// each entry without re-reading it, then deletes the subscription hash
// itself.
func (s *Store) RemoveAllSubscriptions(ctx context.Context, clientID string) error {
	subs, err := s.GetClientSubscriptions(ctx, clientID)
	if err != nil {
		return err
	}

	fs := NewFutureSet()
	for topicStr := range subs {
		topicStr := topicStr
		fs.Add("remove "+topicStr, func() error {
			levels := topic.Split(topicStr)
			return s.RemoveSubscription(ctx, clientID, levels)
		})
	}
	if err := fs.Await(); err != nil {
		return errs.New(errs.Transport, "store.RemoveAllSubscriptions", err)
	}

	if err := s.rdb.Del(ctx, keys.Subscription(clientID)).Err(); err != nil {
		return errs.New(errs.Transport, "store.RemoveAllSubscriptions", err)
	}
	return nil
}
