package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// 知识库目录中的固定文件名
const (
	documentsFile  = "documents.json"
	embeddingsFile = "embeddings.json"
)

// Load 从目录加载文档与预计算向量，构建可用的 Store。
// 文件缺失或损坏不报错：返回不可用的 Store（搜索退化为空结果）。
// 探测只在这里发生一次，之后句柄只读。
func Load(dir string, encoder Encoder, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	docs, vectors, err := loadFiles(dir)
	if err != nil {
		logger.Warn("knowledge base files not loaded",
			zap.String("dir", dir),
			zap.Error(err))
		return NewStore(nil, nil, nil, logger)
	}

	if len(docs) != len(vectors) {
		logger.Warn("knowledge base documents/embeddings count mismatch",
			zap.Int("documents", len(docs)),
			zap.Int("embeddings", len(vectors)))
		return NewStore(nil, nil, nil, logger)
	}

	return NewStore(encoder, NewCosineIndex(vectors), docs, logger)
}

func loadFiles(dir string) ([]Document, [][]float64, error) {
	docData, err := os.ReadFile(filepath.Join(dir, documentsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read documents: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(docData, &docs); err != nil {
		return nil, nil, fmt.Errorf("parse documents: %w", err)
	}

	embData, err := os.ReadFile(filepath.Join(dir, embeddingsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read embeddings: %w", err)
	}
	var vectors [][]float64
	if err := json.Unmarshal(embData, &vectors); err != nil {
		return nil, nil, fmt.Errorf("parse embeddings: %w", err)
	}

	return docs, vectors, nil
}
