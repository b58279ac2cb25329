package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/internal/logger"
)

// CachedEmbedder 带Redis缓存的Embedder装饰器
// 缓存键由模型维度与文本内容哈希组成，命中时不再请求上游
type CachedEmbedder struct {
	inner    Embedder
	client   *redis.Client
	ttl      time.Duration
	hitStats *cacheHitStats
}

type cacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

// NewCachedEmbedder 包装Embedder，client为nil时直接返回原Embedder
func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration) Embedder {
	if client == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedEmbedder{
		inner:    inner,
		client:   client,
		ttl:      ttl,
		hitStats: &cacheHitStats{},
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var embedding []float32
		if err := json.Unmarshal([]byte(cached), &embedding); err == nil && len(embedding) > 0 {
			c.recordHit()
			return embedding, nil
		}
		// 缓存损坏，删除后走上游
		c.client.Del(ctx, key)
	}
	c.recordMiss()

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embedding)
	if err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// cacheKey 生成嵌入缓存键
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%d:%s", c.inner.Dimensions(), hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) recordHit() {
	c.hitStats.mu.Lock()
	c.hitStats.hits++
	c.hitStats.mu.Unlock()
}

func (c *CachedEmbedder) recordMiss() {
	c.hitStats.mu.Lock()
	c.hitStats.misses++
	c.hitStats.mu.Unlock()
}

// CacheStats 获取缓存命中统计
func (c *CachedEmbedder) CacheStats() (hits, misses int64, hitRate float64) {
	c.hitStats.mu.RLock()
	defer c.hitStats.mu.RUnlock()

	hits = c.hitStats.hits
	misses = c.hitStats.misses
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}
