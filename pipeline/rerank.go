package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// 各桶的默认分数：领域 API > 网络 > 本地 KB
const (
	defaultScoreLocalKB   = 0.5
	defaultScoreWeb       = 0.7
	defaultScoreDomainAPI = 0.9
)

// RerankConfig 配置重排阶段。
type RerankConfig struct {
	OriginalWeight float64 `json:"original_weight" yaml:"original_weight"`
	BM25Weight     float64 `json:"bm25_weight" yaml:"bm25_weight"`
	BM25K1         float64 `json:"bm25_k1" yaml:"bm25_k1"`
	BM25B          float64 `json:"bm25_b" yaml:"bm25_b"`
}

// DefaultRerankConfig 返回默认重排参数。
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		OriginalWeight: 0.7,
		BM25Weight:     0.3,
		BM25K1:         1.5,
		BM25B:          0.75,
	}
}

// RankedItem 是重排后的单条结果，附带词法分量便于排查。
type RankedItem struct {
	Content   any     `json:"content"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	BM25Score float64 `json:"bm25_score,omitempty"`
}

// Reranker 把三个桶摊平成一个按混合分数降序的列表。
type Reranker struct {
	config RerankConfig
	logger *zap.Logger
}

// NewReranker 创建重排器。
func NewReranker(config RerankConfig, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		config: config,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 摊平 → BM25 词法打分 → 归一化 → 权重混合 → 稳定降序排序。
// BM25 阶段任何失败只记录日志，退回未混合的原始分数。
func (r *Reranker) Rerank(query string, results RetrievalResult) []RankedItem {
	items := flatten(results)

	if len(items) > 1 {
		if err := r.applyBM25(query, items); err != nil {
			r.logger.Error("bm25 reranking failed, keeping original scores", zap.Error(err))
		}
	}

	// 稳定排序：同分保持桶内原序
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	return items
}

// flatten 将三个桶合并为带来源标签的平面列表，补齐桶默认分。
func flatten(results RetrievalResult) []RankedItem {
	items := make([]RankedItem, 0, len(results.LocalKB)+len(results.Web)+1)

	for _, it := range results.LocalKB {
		score := it.Score
		if score == 0 {
			score = defaultScoreLocalKB
		}
		items = append(items, RankedItem{
			Content: it.Content,
			Source:  ResultSourceLocalKB,
			Score:   score,
		})
	}

	for _, it := range results.Web {
		score := it.Score
		if score == 0 {
			score = defaultScoreWeb
		}
		items = append(items, RankedItem{
			Content: it.Content,
			Source:  ResultSourceWeb,
			Score:   score,
		})
	}

	if len(results.DomainAPI) > 0 {
		items = append(items, RankedItem{
			Content: results.DomainAPI,
			Source:  ResultSourceDomainAPI,
			Score:   defaultScoreDomainAPI,
		})
	}

	return items
}

// applyBM25 对批内每条结果计算词法相关度并混合进原始分。
func (r *Reranker) applyBM25(query string, items []RankedItem) error {
	corpus := make([]string, len(items))
	for i, it := range items {
		text, err := contentText(it.Content)
		if err != nil {
			return fmt.Errorf("stringify content %d: %w", i, err)
		}
		corpus[i] = text
	}

	scorer := newBM25Scorer(corpus, r.config.BM25K1, r.config.BM25B)
	raw := scorer.Scores(query)
	if len(raw) != len(items) {
		return fmt.Errorf("bm25 score count mismatch: %d != %d", len(raw), len(items))
	}

	// 批内按最大值归一化到 [0,1]；全零批除数取 1
	maxScore := 0.0
	for _, s := range raw {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		maxScore = 1
	}

	for i := range items {
		normalized := raw[i] / maxScore
		items[i].BM25Score = normalized
		items[i].Score = r.config.OriginalWeight*items[i].Score + r.config.BM25Weight*normalized
	}

	return nil
}

// contentText 把结构化负载序列化为可分词文本。
func contentText(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
