package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	CACHE_TTL_SHORT  = 5 * time.Minute
	CACHE_TTL_MEDIUM = 30 * time.Minute
	CACHE_TTL_LONG   = 2 * time.Hour

	PRODUCT_CACHE_PREFIX      = "product:"
	PRODUCT_LIST_VERSION_KEY  = "product:list:version"
	PRODUCT_LIST_CACHE_PREFIX = "product:list:"
)

// GetJSON reads key into dst. It returns false on a miss or on any redis error.
func GetJSON(ctx context.Context, rdb *redis.Client, log *zap.Logger, key string, dst interface{}) bool {
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn("redis get failed, falling back to DB", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		log.Warn("cached value is not valid JSON", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func SetJSON(ctx context.Context, rdb *redis.Client, log *zap.Logger, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warn("failed to set cache", zap.String("key", key), zap.Error(err))
	}
}

// ProductListKey scopes list caches by a version counter so one INCR drops all of them.
func ProductListKey(ctx context.Context, rdb *redis.Client, query string) string {
	version, err := rdb.Get(ctx, PRODUCT_LIST_VERSION_KEY).Int64()
	if err != nil {
		version = 0
	}
	return fmt.Sprintf("%sv%d:%s", PRODUCT_LIST_CACHE_PREFIX, version, query)
}

func InvalidateProductCaches(ctx context.Context, rdb *redis.Client, slugs ...string) {
	_ = rdb.Incr(ctx, PRODUCT_LIST_VERSION_KEY).Err()
	for _, slug := range slugs {
		_ = rdb.Del(ctx, PRODUCT_CACHE_PREFIX+slug).Err()
	}
}
