package store

import (
	"context"

	"github.com/qttmesh/core/internal/errs"
)

// checkDelScript deletes key iff its current value equals ARGV[1], and
// returns 1 on delete, 0 otherwise. This is the sole mechanism by which a
// stale disconnect on node n1 can fail to clobber connected_node(clientId)
// after the client has already rebound to node n2.
const checkDelScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`

// incrLimitScript atomically increments key and, if the post-increment value
// exceeds ARGV[1], resets it to 1 and returns the value actually observed by
// the caller (1 on wrap, the incremented value otherwise). This realizes the
// packet-id allocator: values in [1, limit], wrapping to 1 after limit,
// never producing 0.
const incrLimitScript = `
local v = redis.call("INCR", KEYS[1])
if v > tonumber(ARGV[1]) then
	redis.call("SET", KEYS[1], 1)
	return 1
end
return v
`

// CheckDel runs CHECKDEL(key, expected) atomically.
func (s *Store) CheckDel(ctx context.Context, key, expected string) (bool, error) {
	n, err := s.checkDel.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, errs.New(errs.Transport, "store.CheckDel", err)
	}
	return n == 1, nil
}

// IncrLimit runs INCRLIMIT(key, limit) atomically.
func (s *Store) IncrLimit(ctx context.Context, key string, limit int64) (int64, error) {
	n, err := s.incrLimit.Run(ctx, s.rdb, []string{key}, limit).Int64()
	if err != nil {
		return 0, errs.New(errs.Transport, "store.IncrLimit", err)
	}
	return n, nil
}
