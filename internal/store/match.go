package store

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qttmesh/core/internal/errs"
	"github.com/qttmesh/core/internal/keys"
	"github.com/qttmesh/core/internal/topic"
)

// qosMerger accumulates (clientId, qos) pairs from multiple concurrent trie
// branches, keeping the maximum granted QoS per client the same way a
// publish fans out across an overlapping "+" and literal subscription.
type qosMerger struct {
	mu   sync.Mutex
	best map[string]byte
}

func newQosMerger() *qosMerger {
	return &qosMerger{best: make(map[string]byte)}
}

func (m *qosMerger) mergeAll(subs map[string]byte) {
	if len(subs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for client, qos := range subs {
		if cur, ok := m.best[client]; !ok || qos > cur {
			m.best[client] = qos
		}
	}
}

func (m *qosMerger) snapshot() map[string]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]byte, len(m.best))
	for k, v := range m.best {
		out[k] = v
	}
	return out
}

// Match walks the cluster-wide subscription trie for a concrete publish
// topic and returns every (clientId, grantedQoS) whose subscription matches
// it: exact topic_name subscribers plus every topic_filter whose wildcard
// pattern matches, de-duplicated by client with the maximum granted QoS.
//
// The recursive match(T, i) procedure is implemented as a level-synchronized
// breadth-first walk instead of function recursion: at each depth the set of
// still-live trie branches (the "frontier") is read concurrently, bounded by
// Options.MatchConcurrency, and each read produces zero or more emissions
// plus zero or more branches for the next depth. This keeps the call stack
// flat regardless of how wide the subscribed filter set is.
func (s *Store) Match(ctx context.Context, levels []string) (map[string]byte, error) {
	result := newQosMerger()
	n := len(levels)
	if n == 0 {
		return result.snapshot(), nil
	}

	exact, err := s.GetTopicSubscribers(ctx, levels)
	if err != nil {
		return nil, err
	}
	result.mergeAll(exact)

	if topic.IsSystemTopic(levels) {
		return result.snapshot(), nil
	}

	frontier := [][]string{append([]string(nil), levels...)}
	for i := 0; i < n && len(frontier) > 0; i++ {
		frontier, err = s.matchLevel(ctx, levels, frontier, i, n, result)
		if err != nil {
			return nil, err
		}
	}

	return result.snapshot(), nil
}

// matchLevel processes every frontier entry reaching depth i concurrently,
// returning the frontier for depth i+1.
//
// Each working array is the literal/"+"-substituted path a trie branch has
// followed so far: positions before i hold whatever label ("+" or the
// original literal) the branch took at that depth, position i and beyond
// still hold the original topic's levels. children is read from the node at
// that path's prefix of length i.
func (s *Store) matchLevel(ctx context.Context, orig []string, frontier [][]string, i, n int, result *qosMerger) ([][]string, error) {
	var mu sync.Mutex
	var next [][]string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.matchConcurr)

	for _, working := range frontier {
		working := working
		g.Go(func() error {
			children, err := s.hgetAllCounters(gctx, keys.TopicFilterChild(working[0:i]))
			if err != nil {
				return err
			}

			// A "#" edge at the root never matches a topic whose first level
			// starts with "$". Match already skips the whole trie walk for
			// such topics, so this check does not change its result.
			rootOfSystem := i == 0 && topic.IsSystemTopic(orig)

			// A "#" child of the node already reached at this depth matches
			// every remaining level of the published topic, including zero
			// more (i.e. it matches even if this is the last level).
			if !rootOfSystem && children[keys.ChildHash] > 0 {
				subs, err := s.GetTopicSubscribers(gctx, appendLevel(working[0:i], keys.ChildHash))
				if err != nil {
					return err
				}
				result.mergeAll(subs)
			}

			if i == n-1 {
				// The published topic is exhausted after this level. A
				// literal or "+" edge taken here leads to a node one level
				// deeper than the one children was read from; that deeper
				// node's own END field says a filter of exactly this length
				// terminates here, and its own "#" field says a filter
				// continues from here matching zero further levels.
				if children[orig[i]] > 0 {
					if err := s.emitTerminalChild(gctx, working, i, result); err != nil {
						return err
					}
				}
				if children[keys.ChildPlus] > 0 {
					plusWorking := append([]string(nil), working...)
					plusWorking[i] = keys.ChildPlus
					if err := s.emitTerminalChild(gctx, plusWorking, i, result); err != nil {
						return err
					}
				}
				return nil
			}

			if children[orig[i]] > 0 {
				mu.Lock()
				next = append(next, working)
				mu.Unlock()
			}
			if children[keys.ChildPlus] > 0 {
				plusWorking := append([]string(nil), working...)
				plusWorking[i] = keys.ChildPlus
				mu.Lock()
				next = append(next, plusWorking)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errs.New(errs.Transport, "store.matchLevel", err)
	}
	return next, nil
}

// emitTerminalChild reads the trie node at working[0:i+1] (the node reached
// by taking the literal/"+" edge matching the published topic's last level)
// and emits its subscribers if a filter terminates there (END) or continues
// matching zero further levels from there ("#").
func (s *Store) emitTerminalChild(ctx context.Context, working []string, i int, result *qosMerger) error {
	deeper, err := s.hgetAllCounters(ctx, keys.TopicFilterChild(working[0:i+1]))
	if err != nil {
		return err
	}
	if deeper[keys.ChildEnd] > 0 {
		subs, err := s.GetTopicSubscribers(ctx, working[0:i+1])
		if err != nil {
			return err
		}
		result.mergeAll(subs)
	}
	if deeper[keys.ChildHash] > 0 {
		subs, err := s.GetTopicSubscribers(ctx, appendLevel(working[0:i+1], keys.ChildHash))
		if err != nil {
			return err
		}
		result.mergeAll(subs)
	}
	return nil
}

func appendLevel(prefix []string, label string) []string {
	out := make([]string, 0, len(prefix)+1)
	out = append(out, prefix...)
	out = append(out, label)
	return out
}

// hgetAllCounters reads a topic_filter_child hash as label->refcount.
func (s *Store) hgetAllCounters(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errs.New(errs.Transport, "store.hgetAllCounters", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.log.LogInvariantDrift("store.hgetAllCounters", "dropping non-numeric trie counter")
			continue
		}
		out[k] = n
	}
	return out, nil
}
