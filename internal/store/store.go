// Package store implements the shared session, subscription, and retained
// message state of an MQTT broker cluster against a Redis KVS, plus the
// wildcard topic matcher that walks the cluster-wide subscription trie.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qttmesh/core/internal/logger"
)

// Store is the core's single entry point: every session, subscription,
// retained, and matcher operation is a method on Store. It holds no
// per-client state of its own — the KVS is the single source of truth — and
// is safe for concurrent use by every connection handler on a node.
type Store struct {
	rdb           redis.Cmdable
	log           *logger.Logger
	checkDel      *redis.Script
	incrLimit     *redis.Script
	matchConcurr  int
	packetIDLimit int64
}

// Options configures a Store beyond the bare Redis client.
type Options struct {
	// MatchConcurrency bounds the number of concurrent Redis lookups the
	// matcher issues per trie depth. Zero selects a sane default.
	MatchConcurrency int
	// PacketIDLimit is the wrap boundary for NextPacketID. Zero selects the
	// MQTT default of 65535.
	PacketIDLimit int64
	Logger        *logger.Logger
}

// New wraps an existing Redis client (or cluster client, which also
// satisfies redis.Cmdable) in a Store and registers the atomic scripts.
func New(rdb redis.Cmdable, opts Options) *Store {
	if opts.MatchConcurrency <= 0 {
		opts.MatchConcurrency = 16
	}
	if opts.PacketIDLimit <= 0 {
		opts.PacketIDLimit = 65535
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Config{Component: "store"})
	}
	return &Store{
		rdb:           rdb,
		log:           opts.Logger,
		checkDel:      redis.NewScript(checkDelScript),
		incrLimit:     redis.NewScript(incrLimitScript),
		matchConcurr:  opts.MatchConcurrency,
		packetIDLimit: opts.PacketIDLimit,
	}
}

// Dial builds a *redis.Client from an endpoint and dial timeout and wraps it
// in a Store. This is the path cmd/brokercore uses at startup; tests instead
// call New directly against a miniredis-backed client.
func Dial(addr string, dialTimeout time.Duration, opts Options) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})
	return New(rdb, opts)
}

// Ping verifies KVS connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis client, if it owns one.
func (s *Store) Close() error {
	if closer, ok := s.rdb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
