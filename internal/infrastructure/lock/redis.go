package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a key stays held past the wait budget
var ErrLockTimeout = errors.New("lock wait timed out")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig configures the distributed lock
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Wait     time.Duration
	Retry    time.Duration
}

// RedisLocker is a SET NX lock shared by every replica of the service
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(cfg RedisConfig, logger *zap.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        20,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis lock connected", zap.String("addr", cfg.Addr))
	return newRedisLocker(client, cfg, logger), nil
}

func newRedisLocker(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisLocker {
	l := &RedisLocker{
		client: client,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		retry:  cfg.Retry,
		logger: logger,
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.wait <= 0 {
		l.wait = 10 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 25 * time.Millisecond
	}
	return l
}

// Key formats the redis key of a lock
func Key(resource string) string {
	return fmt.Sprintf("lock:v1:%s", resource)
}

// Lock polls SET NX until it owns the key, the wait budget runs out or ctx is done.
// The returned func releases the key only if this holder still owns it.
func (l *RedisLocker) Lock(ctx context.Context, resource string) (func(), error) {
	key := Key(resource)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}

	l.logger.Debug("Lock acquired", zap.String("key", key), zap.Duration("ttl", l.ttl))

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		released, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int()
		switch {
		case err != nil:
			l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
		case released == 0:
			l.logger.Warn("Lock expired before release", zap.String("key", key))
		}
	}, nil
}

// Close releases the redis connection pool
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
