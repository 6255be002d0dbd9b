// MockProvider 是 LLM 提供商的测试模拟实现。
//
// 支持固定响应、按提示词路由与错误注入场景。
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/queryflow/llm"
)

var _ llm.Provider = (*MockProvider)(nil)

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response string
	err      error

	// 按 system prompt 子串路由的响应（优先于固定响应）
	routes map[string]string

	// 调用记录
	calls []MockProviderCall

	// 完全自定义行为
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response: "Mock response",
		routes:   map[string]string{},
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRoute 按 system prompt 子串设置响应。
// 一次管线调用会打多种提示词，路由让单个 mock 能覆盖多个阶段。
func (m *MockProvider) WithRoute(systemPromptContains, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[systemPromptContains] = response
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompletionFunc 设置完全自定义的 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Name 返回提供商名称
func (m *MockProvider) Name() string { return "mock" }

// Completion 返回配置的响应或错误
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completionFunc != nil {
		resp, err := m.completionFunc(ctx, req)
		m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	if m.err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: m.err})
		return nil, m.err
	}

	content := m.response
	if len(req.Messages) > 0 && req.Messages[0].Role == llm.RoleSystem {
		for substr, routed := range m.routes {
			if substr != "" && strings.Contains(req.Messages[0].Content, substr) {
				content = routed
				break
			}
		}
	}

	resp := &llm.ChatResponse{
		Model: req.Model,
		Choices: []llm.ChatChoice{{
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
		Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// HealthCheck 恒报告健康
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Calls 返回调用记录的副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}
