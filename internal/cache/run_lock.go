package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runLockKeyPrefix = "replenishment:lock"

// ReleaseFunc gives a held lock back
type ReleaseFunc func(ctx context.Context) error

// RunLocker serialises replenishment generation per source warehouse.
// Acquire fails with domain.ErrRunInProgress when the key is already held.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// releaseScript deletes the lock only when it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRunLocker struct {
	client *redis.Client
	ttl    time.Duration
}

type localRunLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewRunLocker returns a redis backed locker when caching is enabled,
// otherwise a process-local one.
func NewRunLocker(cfg config.CacheConfig) (RunLocker, error) {
	if !cfg.Enabled {
		return NewLocalRunLocker(), nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisRunLocker{
		client: client,
		ttl:    ttlOrDefault(cfg.LockTTLSeconds, defaultLockTTL),
	}, nil
}

func NewLocalRunLocker() RunLocker {
	return &localRunLocker{held: make(map[string]struct{})}
}

// SourceWarehouseLockKey is the lock key shared by every run of a source warehouse
func SourceWarehouseLockKey(warehouseID int64) string {
	return fmt.Sprintf("warehouse:%d", warehouseID)
}

func (l *redisRunLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	fullKey := runLockKeyPrefix + ":" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release lock failed: %w", err)
		}
		return nil
	}, nil
}

func (l *localRunLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, domain.ErrRunInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
