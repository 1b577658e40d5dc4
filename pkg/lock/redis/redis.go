package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/barekit/relnotes/pkg/lock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder keeps the lock.
const DefaultTTL = 2 * time.Minute

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// errLost cancels the holder's context when the lock expires or is taken over.
var errLost = errors.New("lock lost")

var _ lock.Locker = (*RedisLocker)(nil)

// RedisLocker implements lock.Locker across processes with SET NX and a token.
// The lock is refreshed every TTL/3 while fn runs.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a RedisLocker. A non-positive ttl selects DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, logger: slog.Default()}
}

// NewFromURL parses a redis:// URL and verifies the server is reachable.
func NewFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return New(client, ttl), nil
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	k := lockKey(key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", k, err)
	}
	if !ok {
		return lock.ErrLocked
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	go l.refresh(runCtx, cancel, k, token, done)

	err = fn(runCtx)
	close(done)

	// Release with a fresh context so a cancelled caller still frees the key
	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer releaseCancel()
	if rerr := releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err(); rerr != nil {
		l.logger.Warn("failed to release lock", "key", k, "error", rerr)
	}
	return err
}

func (l *RedisLocker) refresh(ctx context.Context, cancel context.CancelCauseFunc, key, token string, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				l.logger.Warn("failed to refresh lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				cancel(errLost)
				return
			}
		}
	}
}
