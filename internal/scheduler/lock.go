package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the token still matches, so an
// expired lock taken over by another instance is never released by us.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Locker serializes scheduler jobs across instances with a redis SetNX lease.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the named lease. When ok is false another instance holds it.
func (l *Locker) Acquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release = func() {
		_ = l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, token).Err()
	}
	return release, true, nil
}
