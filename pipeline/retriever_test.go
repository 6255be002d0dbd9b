package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/testutil/mocks"
)

func testUnderstanding(domain pipeline.Domain, needsWeb bool) pipeline.Understanding {
	return pipeline.Understanding{
		Query:    "test query",
		Intent:   pipeline.IntentFactual,
		Domain:   domain,
		NeedsWeb: needsWeb,
		Entities: pipeline.EmptyEntities(),
	}
}

func TestRetrieveAllBackends(t *testing.T) {
	kb := &mocks.MockKBSearcher{Hits: []pipeline.KBHit{
		{Content: "relevant doc", Score: 0.9},
	}}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "Result", Link: "https://example.com", Snippet: "snippet"},
	}}
	domain := &mocks.MockDomainClient{Payload: pipeline.DomainPayload{"topic": "weather"}}
	provider := mocks.NewMockProvider().WithRoute("search query optimization", "refined query")

	r := pipeline.NewRetriever(kb, web,
		map[pipeline.Domain]pipeline.DomainClient{pipeline.DomainWeather: domain},
		provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	u := testUnderstanding(pipeline.DomainWeather, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	assert.Len(t, result.LocalKB, 1)
	assert.Len(t, result.Web, 1)
	assert.False(t, result.DomainAPI.HasError())
	assert.Equal(t, "weather", result.DomainAPI["topic"])
	assert.Equal(t, 3, result.Total())
}

func TestRetrieveSimilarityThresholdFilter(t *testing.T) {
	kb := &mocks.MockKBSearcher{Hits: []pipeline.KBHit{
		{Content: "strong", Score: 0.8},
		{Content: "weak", Score: 0.1},
		{Content: "borderline", Score: 0.3},
	}}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{{Title: "t", Link: "l", Snippet: "s"}}}
	provider := mocks.NewMockProvider()

	r := pipeline.NewRetriever(kb, web, nil, provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	u := testUnderstanding(pipeline.DomainGeneral, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	// 0.1 被过滤，0.3 不低于下限保留
	require.Len(t, result.LocalKB, 2)
	assert.Equal(t, "strong", result.LocalKB[0].Content)
	assert.Equal(t, "borderline", result.LocalKB[1].Content)
}

func TestRetrieveDirectAnswerOnlyWithoutWeb(t *testing.T) {
	kb := &mocks.MockKBSearcher{Hits: []pipeline.KBHit{{Content: "doc", Score: 0.5}}}
	web := &mocks.MockWebSearcher{}
	provider := mocks.NewMockProvider().WithRoute("Answer the user's question directly", "a direct answer")

	r := pipeline.NewRetriever(kb, web, nil, provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	// web 未选中：直答前置，rank 0 / score 1.0
	u := testUnderstanding(pipeline.DomainGeneral, false)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	require.Len(t, result.LocalKB, 2)
	assert.Equal(t, "hkgai_direct", result.LocalKB[0].Source)
	assert.Equal(t, "a direct answer", result.LocalKB[0].Content)
	assert.Equal(t, 1.0, result.LocalKB[0].Score)
	assert.Equal(t, 0, result.LocalKB[0].Rank)

	// web 选中：抑制直答
	u = testUnderstanding(pipeline.DomainGeneral, true)
	result = r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	require.Len(t, result.LocalKB, 1)
	assert.Equal(t, "local_kb", result.LocalKB[0].Source)
}

func TestRetrieveDomainFailureFallsBackToWeb(t *testing.T) {
	kb := &mocks.MockKBSearcher{}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "Fallback", Link: "https://example.com", Snippet: "rescue"},
	}}
	domain := &mocks.MockDomainClient{
		Payload: pipeline.ErrorPayload(pipeline.DomainFinance, "FINANCE_API_FAILED"),
	}
	provider := mocks.NewMockProvider().WithRoute("search query optimization", "refined")

	r := pipeline.NewRetriever(kb, web,
		map[pipeline.Domain]pipeline.DomainClient{pipeline.DomainFinance: domain},
		provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	// finance 且 needs_web=false：领域失败后必须回退到 web
	u := testUnderstanding(pipeline.DomainFinance, false)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	assert.True(t, result.DomainAPI.HasError())
	require.Len(t, result.Web, 1)
	assert.Equal(t, "rescue", result.Web[0].Content)
	// 错误负载不计入有效结果
	assert.Equal(t, 1+1, result.Total()) // 直答 + 回退 web
}

func TestRetrieveKBErrorIsolated(t *testing.T) {
	kb := &mocks.MockKBSearcher{Err: errors.New("index corrupted")}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{{Title: "ok", Link: "l", Snippet: "s"}}}
	provider := mocks.NewMockProvider()

	r := pipeline.NewRetriever(kb, web, nil, provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	u := testUnderstanding(pipeline.DomainGeneral, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	// KB 失败只清空自己的桶
	assert.Empty(t, result.LocalKB)
	assert.Len(t, result.Web, 1)
}

func TestRetrieveWebResultShape(t *testing.T) {
	kb := &mocks.MockKBSearcher{}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "Title A", Link: "https://a.example", Snippet: "snippet a"},
		{Title: "Title B", Link: "https://b.example", Snippet: "snippet b"},
	}}
	provider := mocks.NewMockProvider()

	config := pipeline.DefaultRetrieverConfig()
	r := pipeline.NewRetriever(kb, web, nil, provider, config, nil, nil)

	u := testUnderstanding(pipeline.DomainGeneral, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	require.Len(t, result.Web, 2)
	for _, item := range result.Web {
		assert.Equal(t, "web", item.Source)
		assert.Equal(t, config.WebResultScore, item.Score)
		assert.NotEmpty(t, item.Title)
		assert.NotEmpty(t, item.URL)
	}
}

func TestRetrieveUnknownDomainHandler(t *testing.T) {
	kb := &mocks.MockKBSearcher{}
	web := &mocks.MockWebSearcher{}
	provider := mocks.NewMockProvider()

	// 没有注册任何领域客户端
	r := pipeline.NewRetriever(kb, web, nil, provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	u := testUnderstanding(pipeline.DomainTransportation, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	assert.True(t, result.DomainAPI.HasError())
}

func TestRetrieveRefinementFailureUsesOriginalQuery(t *testing.T) {
	kb := &mocks.MockKBSearcher{}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{{Title: "t", Link: "l", Snippet: "s"}}}
	provider := mocks.NewMockProvider().WithError(errors.New("llm down"))

	r := pipeline.NewRetriever(kb, web, nil, provider, pipeline.DefaultRetrieverConfig(), nil, nil)

	u := testUnderstanding(pipeline.DomainGeneral, true)
	r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	queries := web.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "test query", queries[0])
}

// panickingKB 模拟实现有缺陷的知识库协作方。
type panickingKB struct{}

func (panickingKB) Search(ctx context.Context, query string, topK int) ([]pipeline.KBHit, error) {
	panic("kb index out of bounds")
}

// panickingDomain 模拟实现有缺陷的领域客户端。
type panickingDomain struct{}

func (panickingDomain) Fetch(ctx context.Context, query string, entities pipeline.Entities) pipeline.DomainPayload {
	panic("domain client bug")
}

func TestRetrieveKBPanicIsolated(t *testing.T) {
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{{Title: "ok", Link: "l", Snippet: "s"}}}
	provider := mocks.NewMockProvider()
	metrics := pipeline.NewMetrics(nil)

	r := pipeline.NewRetriever(panickingKB{}, web, nil, provider, pipeline.DefaultRetrieverConfig(), metrics, nil)

	u := testUnderstanding(pipeline.DomainGeneral, true)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	// panic 只清空自己的桶，其余后端照常
	assert.Empty(t, result.LocalKB)
	assert.Len(t, result.Web, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("local_kb")))
}

func TestRetrieveDomainPanicFallsBackToWeb(t *testing.T) {
	kb := &mocks.MockKBSearcher{}
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "Fallback", Link: "https://example.com", Snippet: "rescue"},
	}}
	provider := mocks.NewMockProvider()
	metrics := pipeline.NewMetrics(nil)

	r := pipeline.NewRetriever(kb, web,
		map[pipeline.Domain]pipeline.DomainClient{pipeline.DomainFinance: panickingDomain{}},
		provider, pipeline.DefaultRetrieverConfig(), metrics, nil)

	// finance 且 needs_web=false：panic 按错误负载处理并触发 web 回退
	u := testUnderstanding(pipeline.DomainFinance, false)
	result := r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	require.True(t, result.DomainAPI.HasError())
	assert.Contains(t, result.DomainAPI["error"], "domain client bug")
	require.Len(t, result.Web, 1)
	assert.Equal(t, "rescue", result.Web[0].Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("domain_api")))
}

func TestRetrieveBackendFailureCounter(t *testing.T) {
	kb := &mocks.MockKBSearcher{Err: errors.New("index corrupted")}
	web := &mocks.MockWebSearcher{Err: errors.New("search down")}
	domain := &mocks.MockDomainClient{
		Payload: pipeline.ErrorPayload(pipeline.DomainWeather, "WEATHER_API_FAILED"),
	}
	provider := mocks.NewMockProvider()
	metrics := pipeline.NewMetrics(nil)

	r := pipeline.NewRetriever(kb, web,
		map[pipeline.Domain]pipeline.DomainClient{pipeline.DomainWeather: domain},
		provider, pipeline.DefaultRetrieverConfig(), metrics, nil)

	u := testUnderstanding(pipeline.DomainWeather, true)
	r.Retrieve(context.Background(), u, pipeline.SelectSources(u))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("local_kb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("web")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("domain_api")))
}
