package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisManager implements Manager with SET NX PX and a compare-and-delete
// release script, so a holder whose TTL already expired cannot free a
// lock that a later holder re-acquired.
type RedisManager struct {
	rdb *redis.Client
	// retry interval between acquisition attempts
	interval time.Duration
}

// release deletes the key only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisManager creates a Redis-backed lock manager.
func NewRedisManager(rdb *redis.Client) *RedisManager {
	return &RedisManager{rdb: rdb, interval: 50 * time.Millisecond}
}

func (m *RedisManager) Acquire(ctx context.Context, subject string, maxWait, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()
	key := "lock:" + subject
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := m.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{Subject: subject, Token: token}, nil
		}
		if time.Now().Add(m.interval).After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.interval):
		}
	}
}

func (m *RedisManager) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, m.rdb, []string{"lock:" + l.Subject}, l.Token).Err()
}
