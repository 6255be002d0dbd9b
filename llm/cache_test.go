package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/testutil/mocks"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCachingProviderHitSkipsUpstream(t *testing.T) {
	inner := mocks.NewMockProvider().WithResponse("cached answer")
	cached := llm.NewCachingProvider(inner, newTestRedis(t), llm.DefaultCacheConfig(), nil)

	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "system"},
			{Role: llm.RoleUser, Content: "question"},
		},
		MaxTokens:   100,
		Temperature: 0.1,
	}

	first, err := cached.Completion(context.Background(), req)
	require.NoError(t, err)
	second, err := cached.Completion(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.FirstContent(), second.FirstContent())
	assert.Equal(t, 1, inner.CallCount(), "second call must be served from cache")
}

func TestCachingProviderDistinctRequestsMiss(t *testing.T) {
	inner := mocks.NewMockProvider().WithResponse("answer")
	cached := llm.NewCachingProvider(inner, newTestRedis(t), llm.DefaultCacheConfig(), nil)

	for _, q := range []string{"question a", "question b"} {
		_, err := cached.Completion(context.Background(), &llm.ChatRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: q}},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, inner.CallCount())
}

func TestCachingProviderDisabledPassesThrough(t *testing.T) {
	inner := mocks.NewMockProvider().WithResponse("answer")
	cached := llm.NewCachingProvider(inner, newTestRedis(t),
		llm.CacheConfig{TTL: time.Hour, Enabled: false}, nil)

	req := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}}}
	for i := 0; i < 2; i++ {
		_, err := cached.Completion(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, inner.CallCount())
}

func TestCachingProviderRedisDownDegradesToDirect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // 模拟 Redis 故障

	inner := mocks.NewMockProvider().WithResponse("answer")
	cached := llm.NewCachingProvider(inner, rdb, llm.DefaultCacheConfig(), nil)

	resp, err := cached.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}},
	})

	require.NoError(t, err, "redis failure must not fail the call")
	assert.Equal(t, "answer", resp.FirstContent())
}

func TestChatHelperShape(t *testing.T) {
	inner := mocks.NewMockProvider().WithResponse("hello back")

	result, err := llm.Chat(context.Background(), inner, "be nice", "hello", 100, 0.5)

	require.NoError(t, err)
	assert.Equal(t, "hello back", result.Content)

	calls := inner.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Request.Messages, 2)
	assert.Equal(t, llm.RoleSystem, calls[0].Request.Messages[0].Role)
	assert.Equal(t, "be nice", calls[0].Request.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, calls[0].Request.Messages[1].Role)
	assert.Equal(t, 100, calls[0].Request.MaxTokens)
}
