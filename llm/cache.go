package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheConfig 配置响应缓存。
type CacheConfig struct {
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	Enabled bool          `json:"enabled" yaml:"enabled"`
}

// DefaultCacheConfig 返回合理的默认值。
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:     time.Hour,
		Enabled: true,
	}
}

// CachingProvider 用 Redis 缓存包装任意 Provider。
// 缓存键为请求内容的 SHA-256；命中时不触达上游。
// Redis 故障只记录日志，调用降级为直连上游。
type CachingProvider struct {
	inner  Provider
	rdb    *redis.Client
	config CacheConfig
	logger *zap.Logger
}

// NewCachingProvider 创建带缓存的 Provider 包装。
func NewCachingProvider(inner Provider, rdb *redis.Client, config CacheConfig, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{
		inner:  inner,
		rdb:    rdb,
		config: config,
		logger: logger.With(zap.String("component", "llm_cache")),
	}
}

func (c *CachingProvider) Name() string { return c.inner.Name() }

func (c *CachingProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return c.inner.HealthCheck(ctx)
}

func (c *CachingProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !c.config.Enabled || c.rdb == nil {
		return c.inner.Completion(ctx, req)
	}

	key := cacheKey(req)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var resp ChatResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			c.logger.Debug("cache hit", zap.String("key", key))
			return &resp, nil
		}
	}

	resp, err := c.inner.Completion(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.Error(err))
		}
	}

	return resp, nil
}

func cacheKey(req *ChatRequest) string {
	h := sha256.New()
	payload, _ := json.Marshal(req)
	h.Write(payload)
	return "queryflow:llm:" + hex.EncodeToString(h.Sum(nil))
}
