package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/testutil/mocks"
)

// newTestPipeline 组装一条全 mock 后端的管线。
func newTestPipeline(t *testing.T, provider *mocks.MockProvider) *pipeline.Pipeline {
	t.Helper()

	kb := &mocks.MockKBSearcher{Hits: []pipeline.KBHit{{Content: "kb doc", Score: 0.6}}}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "Web", Link: "https://example.com", Snippet: "web snippet"},
	}}
	domains := map[pipeline.Domain]pipeline.DomainClient{
		pipeline.DomainWeather: &mocks.MockDomainClient{Payload: pipeline.DomainPayload{"topic": "weather"}},
	}

	classifier := pipeline.NewClassifier(provider, newTestGeolocator(t), nil)
	retriever := pipeline.NewRetriever(kb, web, domains, provider, pipeline.DefaultRetrieverConfig(), nil, nil)
	reranker := pipeline.NewReranker(pipeline.DefaultRerankConfig(), nil)
	synthesizer := pipeline.NewSynthesizer(provider, nil)
	metrics := pipeline.NewMetrics(nil)

	return pipeline.New(classifier, retriever, reranker, synthesizer, metrics, nil)
}

func TestAnswerEndToEnd(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithRoute("query classification assistant",
			`{"intent":"factual","domain":"weather","needs_web":true,"entities":{"locations":["Hong Kong"]}}`).
		WithRoute("search query optimization", "Hong Kong weather").
		WithRoute("You are HKGAI-V1", "Tomorrow will be sunny in Hong Kong.")

	p := newTestPipeline(t, provider)

	answer := p.Answer(context.Background(), "will it be sunny in Hong Kong tomorrow?")

	assert.Equal(t, "Tomorrow will be sunny in Hong Kong.", answer)
}

func TestAnswerNeverEmptyOnTotalFailure(t *testing.T) {
	// 所有 LLM 调用都失败：分类落默认，生成落兜底文案
	provider := mocks.NewMockProvider().WithError(errors.New("llm down"))

	p := newTestPipeline(t, provider)

	answer := p.Answer(context.Background(), "anything")

	assert.NotEmpty(t, answer)
	assert.Equal(t, "I apologize, but I encountered an error generating a response.", answer)
}

func TestAnswerRecoversFromPanic(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			panic("boom")
		})

	p := newTestPipeline(t, provider)

	answer := p.Answer(context.Background(), "trigger")

	assert.True(t, strings.HasPrefix(answer, "I apologize, but I encountered an error processing your query"),
		"got %q", answer)
	assert.Contains(t, answer, "boom")
}

func TestAnswerConversationalQuery(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithRoute("query classification assistant",
			`{"intent":"conversational","domain":"general","needs_web":false,"entities":{}}`).
		WithRoute("Answer the user's question directly", "Hello! How can I help?").
		WithRoute("You are HKGAI-V1", "Hi there!")

	p := newTestPipeline(t, provider)

	answer := p.Answer(context.Background(), "hello")

	assert.Equal(t, "Hi there!", answer)
}
