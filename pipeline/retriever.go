package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/queryflow/llm"
)

// 结果来源标签
const (
	ResultSourceLocalKB   = "local_kb"
	ResultSourceWeb       = "web"
	ResultSourceDomainAPI = "domain_api"
	ResultSourceDirect    = "hkgai_direct"
)

// ResultItem 是单条检索结果。Content 可以是文本或结构化负载。
type ResultItem struct {
	Content any     `json:"content"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank,omitempty"`
}

// DomainPayload 是领域 API 的返回：领域负载或 {"error": ...} 标记。
type DomainPayload map[string]any

// HasError 判断负载是否携带错误标记。
func (p DomainPayload) HasError() bool {
	_, ok := p["error"]
	return ok
}

// ErrorPayload 构造错误标记负载。
func ErrorPayload(domain Domain, reason string) DomainPayload {
	return DomainPayload{"error": reason, "domain": string(domain)}
}

// RetrievalResult 按后端分桶，三个桶互相独立、重排前不合并。
type RetrievalResult struct {
	LocalKB   []ResultItem  `json:"local_kb_results"`
	Web       []ResultItem  `json:"web_results"`
	DomainAPI DomainPayload `json:"domain_api_result"`
}

// Total 统计有效结果数（错误负载不计）。
func (r RetrievalResult) Total() int {
	total := len(r.LocalKB) + len(r.Web)
	if len(r.DomainAPI) > 0 && !r.DomainAPI.HasError() {
		total++
	}
	return total
}

// KBHit 是向量知识库协作方返回的单条候选。
type KBHit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// KBSearcher 向量知识库协作方：编码查询 → 相似度搜索 → top-k 候选。
// 索引/模型缺失时应退化为空结果，而不是报错。
type KBSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]KBHit, error)
}

// WebResult 是网络搜索协作方返回的单条结果。
type WebResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// WebSearcher 网络搜索协作方。缺少凭证时返回空列表而非错误。
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// DomainClient 领域 API 协作方（finance/weather/transportation），
// 可独立替换，约定不向边界外抛错。
type DomainClient interface {
	Fetch(ctx context.Context, query string, entities Entities) DomainPayload
}

// RetrieverConfig 配置检索阶段。
type RetrieverConfig struct {
	TopK           int           `json:"top_k" yaml:"top_k"`
	MinSimilarity  float64       `json:"min_similarity" yaml:"min_similarity"`
	MaxWebResults  int           `json:"max_web_results" yaml:"max_web_results"`
	WebResultScore float64       `json:"web_result_score" yaml:"web_result_score"`
	BackendTimeout time.Duration `json:"backend_timeout" yaml:"backend_timeout"`
}

// DefaultRetrieverConfig 返回默认检索参数。
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:           5,
		MinSimilarity:  0.30,
		MaxWebResults:  5,
		WebResultScore: 0.8,
		BackendTimeout: 10 * time.Second,
	}
}

// Retriever 按 SourceSelection 并发扇出到至多三个后端，
// 单个后端的失败只影响自己的桶。
type Retriever struct {
	kb       KBSearcher
	web      WebSearcher
	domains  map[Domain]DomainClient
	provider llm.Provider
	config   RetrieverConfig
	metrics  *Metrics
	logger   *zap.Logger
}

// NewRetriever 创建检索器。domains 以 handler 领域为键，metrics 可为 nil。
func NewRetriever(
	kb KBSearcher,
	web WebSearcher,
	domains map[Domain]DomainClient,
	provider llm.Provider,
	config RetrieverConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		kb:       kb,
		web:      web,
		domains:  domains,
		provider: provider,
		config:   config,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 并发执行选中的后端，join 后再做领域失败的顺序回退。
// 返回值的三个桶恒存在；超时或出错的后端表现为空桶/错误负载。
func (r *Retriever) Retrieve(ctx context.Context, u Understanding, sel SourceSelection) RetrievalResult {
	result := RetrievalResult{
		LocalKB:   []ResultItem{},
		Web:       []ResultItem{},
		DomainAPI: DomainPayload{},
	}

	g, gctx := errgroup.WithContext(ctx)

	// 每个后端 goroutine 自带 recover：协作方实现可替换，
	// 其中的 panic 只清空自己的桶，不得终止进程。
	if sel.Has(SourceLocalKB) {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, r.config.BackendTimeout)
			defer cancel()
			defer r.recoverBackend(ResultSourceLocalKB)
			result.LocalKB = r.retrieveLocalKB(bctx, u, sel)
			return nil
		})
	}

	if sel.Has(SourceWebSearch) {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, r.config.BackendTimeout)
			defer cancel()
			defer r.recoverBackend(ResultSourceWeb)
			result.Web = r.retrieveWeb(bctx, u)
			return nil
		})
	}

	if sel.Has(SourceDomainAPI) && sel.DomainHandler != "" {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, r.config.BackendTimeout)
			defer cancel()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("domain client panic",
						zap.String("domain", string(sel.DomainHandler)),
						zap.Any("panic", rec))
					r.metrics.observeBackendFailure(ResultSourceDomainAPI)
					// 按错误负载处理，让下面的 web 回退照常生效
					result.DomainAPI = ErrorPayload(sel.DomainHandler, fmt.Sprintf("domain client panic: %v", rec))
				}
			}()
			result.DomainAPI = r.callDomainAPI(bctx, u, sel.DomainHandler)
			return nil
		})
	}

	_ = g.Wait()

	// 领域 API 失败且 web 未被选中时做一次同步回退，
	// 避免在没有其它依据时静默产出空答案。
	// 必须先观察到领域结果才能决定，因此不在并发扇出中。
	if result.DomainAPI.HasError() && !sel.Has(SourceWebSearch) {
		r.logger.Warn("domain api failed, falling back to web search",
			zap.String("domain", string(sel.DomainHandler)))
		bctx, cancel := context.WithTimeout(ctx, r.config.BackendTimeout)
		result.Web = r.retrieveWeb(bctx, u)
		cancel()
	}

	r.logger.Info("retrieval finished",
		zap.Int("local_kb", len(result.LocalKB)),
		zap.Int("web", len(result.Web)),
		zap.Bool("domain_api_ok", len(result.DomainAPI) > 0 && !result.DomainAPI.HasError()))

	return result
}

// recoverBackend 吸收单个后端 goroutine 的 panic，桶保持已初始化的空值。
func (r *Retriever) recoverBackend(backend string) {
	if rec := recover(); rec != nil {
		r.logger.Error("retrieval backend panic",
			zap.String("backend", backend),
			zap.Any("panic", rec))
		r.metrics.observeBackendFailure(backend)
	}
}

// retrieveLocalKB 查询向量知识库并过滤低相似度候选。
// web 未被选中时，额外向 LLM 要一条无依据直答并前置：
// 缺少外部依据时宁可利用模型自身知识；有 web 结果时抑制，
// 避免把无依据内容混进有依据的上下文。
func (r *Retriever) retrieveLocalKB(ctx context.Context, u Understanding, sel SourceSelection) []ResultItem {
	items := []ResultItem{}

	hits, err := r.kb.Search(ctx, u.Query, r.config.TopK)
	if err != nil {
		r.logger.Error("local kb search failed", zap.Error(err))
		r.metrics.observeBackendFailure(ResultSourceLocalKB)
		hits = nil
	}

	for i, hit := range hits {
		if hit.Score < r.config.MinSimilarity {
			continue
		}
		items = append(items, ResultItem{
			Content: hit.Content,
			Source:  ResultSourceLocalKB,
			Score:   hit.Score,
			Rank:    i + 1,
		})
	}

	if !sel.Has(SourceWebSearch) {
		if direct, ok := r.directAnswer(ctx, u.Query); ok {
			items = append([]ResultItem{direct}, items...)
		}
	}

	return items
}

// directAnswer 向 LLM 要一条不带检索依据的直接回答。
func (r *Retriever) directAnswer(ctx context.Context, query string) (ResultItem, bool) {
	result, err := llm.Chat(ctx, r.provider, directAnswerSystemPrompt, query, directAnswerMaxTokens, directAnswerTemperature)
	if err != nil {
		r.logger.Error("direct answer failed", zap.Error(err))
		return ResultItem{}, false
	}
	if result.Content == "" {
		r.logger.Warn("direct answer empty")
		return ResultItem{}, false
	}
	return ResultItem{
		Content: result.Content,
		Source:  ResultSourceDirect,
		Score:   1.0,
		Rank:    0,
	}, true
}

// retrieveWeb 先做查询改写再搜索；改写失败用原查询。
func (r *Retriever) retrieveWeb(ctx context.Context, u Understanding) []ResultItem {
	refined := r.refineQuery(ctx, u)

	results, err := r.web.Search(ctx, refined, r.config.MaxWebResults)
	if err != nil {
		r.logger.Error("web search failed", zap.Error(err))
		r.metrics.observeBackendFailure(ResultSourceWeb)
		return []ResultItem{}
	}

	items := make([]ResultItem, 0, len(results))
	for _, res := range results {
		items = append(items, ResultItem{
			Content: res.Snippet,
			Title:   res.Title,
			URL:     res.Link,
			Source:  ResultSourceWeb,
			Score:   r.config.WebResultScore,
		})
	}
	return items
}

// refineQuery 用 LLM 把口语化查询改写成搜索引擎查询，
// 并折入位置/时间上下文。任何失败都回退到原查询。
func (r *Retriever) refineQuery(ctx context.Context, u Understanding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Refine this search query: %s", u.Query)
	if u.Context.Location != "" {
		fmt.Fprintf(&sb, "\nUser's location: %s, %s", u.Context.Location, u.Context.Country)
	}
	if u.Context.CurrentTime != "" {
		fmt.Fprintf(&sb, "\nCurrent time: %s", u.Context.CurrentTime)
	}

	result, err := llm.Chat(ctx, r.provider, refinementSystemPrompt, sb.String(), refinementMaxTokens, refinementTemperature)
	if err != nil || strings.TrimSpace(result.Content) == "" {
		r.logger.Warn("query refinement failed, using original query", zap.Error(err))
		return u.Query
	}

	refined := strings.TrimSpace(result.Content)
	r.logger.Debug("query refined",
		zap.String("original", u.Query),
		zap.String("refined", refined))
	return refined
}

// callDomainAPI 按 handler 分发到对应领域集成。
func (r *Retriever) callDomainAPI(ctx context.Context, u Understanding, handler Domain) DomainPayload {
	client, ok := r.domains[handler]
	if !ok {
		r.logger.Warn("no handler for domain", zap.String("domain", string(handler)))
		return ErrorPayload(handler, fmt.Sprintf("no API handler for domain: %s", handler))
	}

	payload := client.Fetch(ctx, u.Query, u.Entities)
	if payload == nil {
		payload = ErrorPayload(handler, "domain client returned no payload")
	}
	if payload.HasError() {
		r.logger.Error("domain api returned error",
			zap.String("domain", string(handler)),
			zap.Any("error", payload["error"]))
		r.metrics.observeBackendFailure(ResultSourceDomainAPI)
	}
	return payload
}
