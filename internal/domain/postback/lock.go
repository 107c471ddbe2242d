package postback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "postback:lock:"

// Locker serialises concurrent deliveries of the same postback. The ledger's
// unique key is still the source of truth; the lock only keeps duplicate
// work away from the database.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a short SET NX lock per (provider, transaction).
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker returns a Redis-backed locker, or a no-op one when client is nil.
func NewLocker(client *redis.Client, ttl time.Duration) Locker {
	if client == nil {
		return noopLocker{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire fails open: when Redis is unreachable the caller proceeds and the
// error is returned for logging only.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	k := lockKeyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return func() {}, true, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		releaseScript.Run(ctx2, l.client, []string{k}, token)
	}
	return release, true, nil
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
