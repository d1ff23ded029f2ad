// Package runlock keeps two harness runs from deleting and restoring the same topic at the
// same time when they share a cluster.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis client the lock uses.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

var ErrHeld = errors.New("run lock held by another run")

// releaseScript deletes the key only while it still carries our owner token, so a lease
// that expired and was taken over is never released by its previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb    Client
	prefix string
	ttl    time.Duration
}

func New(rdb Client, prefix string, ttl time.Duration) *Locker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "restorecheck:lock"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Locker{rdb: rdb, prefix: prefix, ttl: ttl}
}

type Lease struct {
	locker *Locker
	Key    string
	Owner  string
}

// Acquire takes the lock for topic on behalf of owner (the run id).
func (l *Locker) Acquire(ctx context.Context, topic, owner string) (*Lease, error) {
	key := l.prefix + ":" + topic
	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		holder, err := l.rdb.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrHeld)
		}
		return nil, fmt.Errorf("acquire %s: %w (holder %q)", key, ErrHeld, holder)
	}
	return &Lease{locker: l, Key: key, Owner: owner}, nil
}

// Release reports whether the key was still ours.
func (ls *Lease) Release(ctx context.Context) (bool, error) {
	res, err := releaseScript.Run(ctx, ls.locker.rdb, []string{ls.Key}, ls.Owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", ls.Key, err)
	}
	return res == 1, nil
}
