package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"partner-service/internal/models"
)

// NetworkCache caches per-partner network statistics. Entries live in Redis
// when a client is configured and always in a small local map, so stats
// queries keep working when Redis is down.
type NetworkCache struct {
	redis  *redis.Client
	logger *logrus.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewNetworkCache creates a stats cache. redisClient may be nil.
func NewNetworkCache(redisClient *redis.Client, logger *logrus.Logger, ttl time.Duration) *NetworkCache {
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &NetworkCache{
		redis:  redisClient,
		logger: logger,
		ttl:    ttl,
		local:  make(map[string]localEntry),
	}
}

func statsKey(partnerID uuid.UUID) string {
	return fmt.Sprintf("partner:stats:%s", partnerID)
}

// GetStats returns cached stats for a partner, or false on a miss.
func (c *NetworkCache) GetStats(ctx context.Context, partnerID uuid.UUID) (*models.NetworkStats, bool) {
	key := statsKey(partnerID)

	// Check local cache first
	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		var stats models.NetworkStats
		if err := json.Unmarshal(entry.data, &stats); err == nil {
			return &stats, true
		}
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var stats models.NetworkStats
			if err := json.Unmarshal(data, &stats); err == nil {
				c.setLocal(key, data)
				return &stats, true
			}
		} else if err != redis.Nil {
			c.logger.WithError(err).Warn("Failed to read network stats from Redis")
		}
	}

	return nil, false
}

// SetStats caches stats for a partner.
func (c *NetworkCache) SetStats(ctx context.Context, stats *models.NetworkStats) {
	key := statsKey(stats.PartnerID)

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}

	c.setLocal(key, data)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).Warn("Failed to write network stats to Redis")
		}
	}
}

// Purge drops every cached entry. Called after any account or code change;
// stat entries are cheap to rebuild and the TTL is short, so a full sweep
// beats tracking which partners a write touched.
func (c *NetworkCache) Purge() {
	c.mu.Lock()
	c.local = make(map[string]localEntry)
	c.mu.Unlock()

	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		iter := c.redis.Scan(ctx, 0, "partner:stats:*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.WithError(err).Warn("Failed to purge network stats from Redis")
			}
		}
	}
}

func (c *NetworkCache) setLocal(key string, data []byte) {
	c.mu.Lock()
	c.local[key] = localEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
