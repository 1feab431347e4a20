package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PredictionCacheStats tracks cache performance counters.
type PredictionCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// predictionEntry is the serialized cache payload.
type predictionEntry struct {
	Predictions []float64 `json:"predictions"`
	CachedAt    time.Time `json:"cached_at"`
}

// PredictionCache keeps recent prediction batches in Redis for a short
// TTL, keyed by a digest of the request features. The cache is a
// throughput optimization only: a missing or failing Redis never fails
// a prediction.
type PredictionCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
	stats  *PredictionCacheStats
}

func NewPredictionCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *PredictionCache {
	return &PredictionCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "prediction_cache:",
		logger: logger,
		stats:  &PredictionCacheStats{},
	}
}

// Key derives a deterministic digest for a feature batch.
func (c *PredictionCache) Key(features [][]float64) string {
	payload, err := json.Marshal(features)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Get returns a cached prediction batch, if present and fresh.
func (c *PredictionCache) Get(ctx context.Context, key string) ([]float64, bool) {
	if c.redis == nil || key == "" {
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Prediction cache read failed")
		c.miss()
		return nil, false
	}

	var entry predictionEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Prediction cache entry corrupt")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return entry.Predictions, true
}

// Set stores a prediction batch under the request digest.
func (c *PredictionCache) Set(ctx context.Context, key string, predictions []float64) {
	if c.redis == nil || key == "" {
		return
	}

	entry := predictionEntry{
		Predictions: predictions,
		CachedAt:    time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Prediction cache write failed")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Stats returns a copy of the cache counters.
func (c *PredictionCache) Stats() (hits, misses, sets int64) {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return c.stats.Hits, c.stats.Misses, c.stats.Sets
}

func (c *PredictionCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
