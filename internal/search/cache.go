package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"docvault/api/internal/metrics"
)

const cacheKeyPrefix = "hybridsearch:"

// Cache stores full search responses in Redis. All search requests share it;
// reconciliation invalidates it wholesale, never partially.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	log    *zap.Logger
}

// NewCache connects to Redis and verifies the connection.
func NewCache(redisURL string, ttl time.Duration, log *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewCacheWithClient(client, ttl, log), nil
}

// NewCacheWithClient builds a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, log: log}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Key derives the cache key from the response-shaping inputs. Tenant and
// user are part of the key because the cached response is already
// security-trimmed for that caller.
func (c *Cache) Key(tenantID, userID, query string, page PageRequest) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		tenantID, userID, query, strconv.Itoa(page.Page), strconv.Itoa(page.Size),
	}, "\x00")))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, key string) (*PagedResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Error("cache get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	var result PagedResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.log.Error("cache unmarshal failed", zap.String("key", key), zap.Error(err))
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
	return &result, true
}

func (c *Cache) Set(ctx context.Context, key string, result *PagedResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Error("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Error("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrCompute collapses concurrent identical requests onto one computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (*PagedResult, error)) (*PagedResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.Get(ctx, key); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value.(*PagedResult), false, nil
}

// EvictCache removes every cached search response.
func (c *Cache) EvictCache(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}
