// Package kb 实现本地向量知识库协作方：
// 查询编码、近邻搜索与 id→文档映射。
// 索引或嵌入文件缺失时整体退化为"无结果"，只在启动时探测一次。
package kb

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Document 知识库文档
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Encoder 把文本编码为查询向量（嵌入计算由外部承担）。
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float64, error)
}

// IndexHit 是索引返回的单条近邻。
type IndexHit struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Index 向量相似度索引。
type Index interface {
	Search(ctx context.Context, vector []float64, topK int) ([]IndexHit, error)
	Count() int
}

// Hit 是知识库检索的单条结果。
type Hit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Store 组合编码器、索引与文档映射。
// 进程级只读句柄：启动时构建一次，之后并发读安全。
type Store struct {
	encoder   Encoder
	index     Index
	documents []Document
	available bool
	logger    *zap.Logger
}

// NewStore 创建知识库存储。encoder/index/documents 任一缺失即不可用，
// 不可用的存储 Search 恒返回空结果而非错误。
func NewStore(encoder Encoder, index Index, documents []Document, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "kb_store"))

	available := encoder != nil && index != nil && len(documents) > 0
	if !available {
		logger.Warn("knowledge base unavailable, searches will return no results")
	} else {
		logger.Info("knowledge base loaded", zap.Int("documents", len(documents)))
	}

	return &Store{
		encoder:   encoder,
		index:     index,
		documents: documents,
		available: available,
		logger:    logger,
	}
}

// Available 报告知识库是否可用。
func (s *Store) Available() bool { return s.available }

// Search 编码查询并做相似度搜索，返回 top-k 候选。
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if !s.available {
		return []Hit{}, nil
	}

	vector, err := s.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	indexHits, err := s.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	hits := make([]Hit, 0, len(indexHits))
	for _, ih := range indexHits {
		if ih.ID < 0 || ih.ID >= len(s.documents) {
			continue
		}
		hits = append(hits, Hit{
			Content: s.documents[ih.ID].Content,
			Score:   ih.Score,
		})
	}

	s.logger.Debug("kb search finished",
		zap.Int("hits", len(hits)),
		zap.Int("top_k", topK))

	return hits, nil
}
