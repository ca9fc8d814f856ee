package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const demandKeyPrefix = "demand:therapy_count"

// DemandCache stores therapy counts per clinic and day
type DemandCache interface {
	GetTherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, bool, error)
	SetTherapyCount(ctx context.Context, clinicID int64, date time.Time, count int) error
	InvalidateAll(ctx context.Context) error
}

type redisDemandCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopDemandCache struct{}

func NewDemandCache(cfg config.CacheConfig) (DemandCache, error) {
	if !cfg.Enabled {
		return &noopDemandCache{}, nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisDemandCache{
		client: client,
		ttl:    ttlOrDefault(cfg.DemandTTLSeconds, defaultDemandTTL),
	}, nil
}

func NewNoopDemandCache() DemandCache {
	return &noopDemandCache{}
}

func (c *redisDemandCache) GetTherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, bool, error) {
	raw, err := c.client.Get(ctx, demandKey(clinicID, date)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("decode therapy count cache: %w", err)
	}
	return count, true, nil
}

func (c *redisDemandCache) SetTherapyCount(ctx context.Context, clinicID int64, date time.Time, count int) error {
	if err := c.client.Set(ctx, demandKey(clinicID, date), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisDemandCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, demandKeyPrefix, scanBatchSize)
}

func (n *noopDemandCache) GetTherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, bool, error) {
	return 0, false, nil
}

func (n *noopDemandCache) SetTherapyCount(ctx context.Context, clinicID int64, date time.Time, count int) error {
	return nil
}

func (n *noopDemandCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func demandKey(clinicID int64, date time.Time) string {
	return fmt.Sprintf("%s:%d:%s", demandKeyPrefix, clinicID, date.Format("2006-01-02"))
}

type cachedDemandSignal struct {
	inner repository.DemandSignal
	cache DemandCache
}

// CachedDemandSignal reads therapy counts through the cache. Cache failures
// fall back to the wrapped signal.
func CachedDemandSignal(inner repository.DemandSignal, cache DemandCache) repository.DemandSignal {
	if cache == nil {
		return inner
	}
	return &cachedDemandSignal{inner: inner, cache: cache}
}

func (d *cachedDemandSignal) TherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, error) {
	if count, ok, err := d.cache.GetTherapyCount(ctx, clinicID, date); err == nil && ok {
		return count, nil
	} else if err != nil {
		log.Warn().Err(err).Int64("clinic_id", clinicID).Msg("demand: cache get therapy count failed")
	}

	count, err := d.inner.TherapyCount(ctx, clinicID, date)
	if err != nil {
		return 0, err
	}

	if err := d.cache.SetTherapyCount(ctx, clinicID, date, count); err != nil {
		log.Warn().Err(err).Int64("clinic_id", clinicID).Msg("demand: cache set therapy count failed")
	}
	return count, nil
}
