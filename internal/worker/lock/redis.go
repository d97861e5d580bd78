// Package lock keeps two render runs from picking up the same jobs.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"manimrender/internal/pkg/errors"
)

var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a held run lock. It expires on its own after the TTL unless
// refreshed.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// Acquire takes key for ttl. A lock held by someone else is a LOCKED error.
func Acquire(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "lock.acquire", "set "+key)
	}
	if !ok {
		return nil, errors.New(errors.CodeLocked, "another render run holds "+key).WithField("key", key)
	}
	return &Lock{rdb: rdb, key: key, token: token, ttl: ttl}, nil
}

// Release deletes the key only while it still holds our token, so a lock
// that expired and was taken over is left alone.
func (l *Lock) Release(ctx context.Context) error {
	n, err := release.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "lock.release", "release "+l.key)
	}
	if n == 0 {
		return errors.New(errors.CodeConflict, "lock "+l.key+" was no longer held")
	}
	return nil
}

// Refresh pushes the expiry a full TTL ahead while the key still holds our
// token. A lock that expired or was taken over is a CONFLICT error.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := refresh.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "lock.refresh", "refresh "+l.key)
	}
	if n == 0 {
		return errors.New(errors.CodeConflict, "lock "+l.key+" was lost").WithField("key", l.key)
	}
	return nil
}

func (l *Lock) Key() string { return l.key }
