// 检索协作方（知识库 / 网络搜索 / 领域 API）的测试模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/queryflow/pipeline"
)

// MockKBSearcher 是 pipeline.KBSearcher 的模拟实现
type MockKBSearcher struct {
	mu   sync.Mutex
	Hits []pipeline.KBHit
	Err  error

	queries []string
}

// Search 返回配置的命中或错误
func (m *MockKBSearcher) Search(ctx context.Context, query string, topK int) ([]pipeline.KBHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	if topK < len(m.Hits) {
		return m.Hits[:topK], nil
	}
	return m.Hits, nil
}

// Queries 返回历史查询
func (m *MockKBSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// MockWebSearcher 是 pipeline.WebSearcher 的模拟实现
type MockWebSearcher struct {
	mu      sync.Mutex
	Results []pipeline.WebResult
	Err     error

	queries []string
}

// Search 返回配置的结果或错误
func (m *MockWebSearcher) Search(ctx context.Context, query string, maxResults int) ([]pipeline.WebResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	if maxResults < len(m.Results) {
		return m.Results[:maxResults], nil
	}
	return m.Results, nil
}

// Queries 返回历史查询
func (m *MockWebSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// CallCount 返回调用次数
func (m *MockWebSearcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// MockDomainClient 是 pipeline.DomainClient 的模拟实现
type MockDomainClient struct {
	mu      sync.Mutex
	Payload pipeline.DomainPayload

	calls int
}

// Fetch 返回配置的负载
func (m *MockDomainClient) Fetch(ctx context.Context, query string, entities pipeline.Entities) pipeline.DomainPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Payload
}

// CallCount 返回调用次数
func (m *MockDomainClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
