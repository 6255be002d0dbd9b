package pipeline

import (
	"math"
	"strings"
)

// bm25Scorer 在一个批次的文档上计算 Okapi BM25 分数。
// 分词为小写空白切分，对中英混合内容同样适用（中文按整串词元处理）。
type bm25Scorer struct {
	k1        float64
	b         float64
	docTerms  []map[string]int
	docLens   []float64
	avgDocLen float64
	idf       map[string]float64
}

func tokenizeBM25(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// newBM25Scorer 针对给定语料构建打分器并预计算 IDF。
func newBM25Scorer(corpus []string, k1, b float64) *bm25Scorer {
	s := &bm25Scorer{
		k1:       k1,
		b:        b,
		docTerms: make([]map[string]int, len(corpus)),
		docLens:  make([]float64, len(corpus)),
		idf:      make(map[string]float64),
	}

	termDocCount := make(map[string]int)
	totalLen := 0.0

	for i, text := range corpus {
		terms := tokenizeBM25(text)
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		s.docTerms[i] = freq
		s.docLens[i] = float64(len(terms))
		totalLen += float64(len(terms))

		for t := range freq {
			termDocCount[t]++
		}
	}

	if len(corpus) > 0 {
		s.avgDocLen = totalLen / float64(len(corpus))
	}

	n := float64(len(corpus))
	for term, df := range termDocCount {
		s.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}

	return s
}

// Scores 返回查询对语料中每篇文档的原始 BM25 分数。
func (s *bm25Scorer) Scores(query string) []float64 {
	queryTerms := tokenizeBM25(query)
	scores := make([]float64, len(s.docTerms))

	for i, freq := range s.docTerms {
		docLen := s.docLens[i]
		score := 0.0
		for _, qt := range queryTerms {
			tf, ok := freq[qt]
			if !ok {
				continue
			}
			idf := s.idf[qt]
			numerator := float64(tf) * (s.k1 + 1.0)
			denominator := float64(tf) + s.k1*(1.0-s.b+s.b*(docLen/safeDiv(s.avgDocLen)))
			score += idf * (numerator / denominator)
		}
		scores[i] = score
	}

	return scores
}

func safeDiv(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
