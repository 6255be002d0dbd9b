package kb

import (
	"context"
	"math"
	"sort"
)

// CosineIndex 是内存余弦相似度索引，适合中小规模知识库。
// 向量在构建时一次写入，之后只读，可并发搜索。
type CosineIndex struct {
	vectors [][]float64
	norms   []float64
}

// NewCosineIndex 基于文档向量构建索引。
func NewCosineIndex(vectors [][]float64) *CosineIndex {
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = vectorNorm(v)
	}
	return &CosineIndex{vectors: vectors, norms: norms}
}

func (idx *CosineIndex) Count() int { return len(idx.vectors) }

// Search 返回与查询向量余弦相似度最高的 topK 条。
func (idx *CosineIndex) Search(ctx context.Context, vector []float64, topK int) ([]IndexHit, error) {
	if len(idx.vectors) == 0 || topK <= 0 {
		return []IndexHit{}, nil
	}

	queryNorm := vectorNorm(vector)
	hits := make([]IndexHit, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		hits = append(hits, IndexHit{
			ID:    i,
			Score: cosine(vector, v, queryNorm, idx.norms[i]),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func vectorNorm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot := 0.0
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}
