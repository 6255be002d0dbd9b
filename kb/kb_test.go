package kb

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// fakeEncoder 返回固定向量的测试编码器
type fakeEncoder struct {
	vector []float64
	err    error
}

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func TestCosineIndexOrdering(t *testing.T) {
	index := NewCosineIndex([][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	})

	hits, err := index.Search(context.Background(), []float64{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != 0 {
		t.Errorf("identical vector should rank first, got id %d", hits[0].ID)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-9 {
		t.Errorf("identical vector should score 1.0, got %f", hits[0].Score)
	}
	if hits[1].ID != 2 {
		t.Errorf("near vector should rank second, got id %d", hits[1].ID)
	}
	if hits[2].ID != 1 {
		t.Errorf("orthogonal vector should rank last, got id %d", hits[2].ID)
	}
}

func TestCosineIndexTopKTruncation(t *testing.T) {
	index := NewCosineIndex([][]float64{{1, 0}, {0, 1}, {1, 1}})

	hits, err := index.Search(context.Background(), []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestCosineIndexZeroVector(t *testing.T) {
	index := NewCosineIndex([][]float64{{1, 0}, {0, 0}})

	hits, err := index.Search(context.Background(), []float64{0, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range hits {
		if h.Score != 0 {
			t.Errorf("zero vector must score 0, got %f for id %d", h.Score, h.ID)
		}
	}
}

func TestStoreSearch(t *testing.T) {
	docs := []Document{
		{ID: "a", Content: "Victoria Peak is the highest hill on Hong Kong Island."},
		{ID: "b", Content: "The MTR is Hong Kong's rapid transit system."},
	}
	index := NewCosineIndex([][]float64{{1, 0}, {0, 1}})
	encoder := &fakeEncoder{vector: []float64{0, 1}}

	store := NewStore(encoder, index, docs, zap.NewNop())

	if !store.Available() {
		t.Fatal("store should be available")
	}

	hits, err := store.Search(context.Background(), "how does the mtr work", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Content != docs[1].Content {
		t.Errorf("expected mtr document, got %q", hits[0].Content)
	}
}

func TestStoreUnavailableReturnsEmpty(t *testing.T) {
	store := NewStore(nil, nil, nil, zap.NewNop())

	if store.Available() {
		t.Fatal("store should be unavailable")
	}

	hits, err := store.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("unavailable store must not error, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("unavailable store must return no hits, got %d", len(hits))
	}
}

func TestStoreEncoderErrorPropagates(t *testing.T) {
	store := NewStore(
		&fakeEncoder{err: errors.New("embedding service down")},
		NewCosineIndex([][]float64{{1}}),
		[]Document{{ID: "a", Content: "doc"}},
		zap.NewNop(),
	)

	_, err := store.Search(context.Background(), "query", 1)
	if err == nil {
		t.Fatal("expected error from encoder")
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	store := Load(filepath.Join(t.TempDir(), "does-not-exist"), &fakeEncoder{}, zap.NewNop())

	if store.Available() {
		t.Error("store from missing directory must be unavailable")
	}
}

func TestLoadCorruptDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, documentsFile), "not json at all")
	writeFile(t, filepath.Join(dir, embeddingsFile), "[[1,0]]")

	store := Load(dir, &fakeEncoder{}, zap.NewNop())

	if store.Available() {
		t.Error("store from corrupt documents must be unavailable")
	}
}

func TestLoadCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, documentsFile), `[{"id":"a","content":"one"},{"id":"b","content":"two"}]`)
	writeFile(t, filepath.Join(dir, embeddingsFile), "[[1,0]]")

	store := Load(dir, &fakeEncoder{}, zap.NewNop())

	if store.Available() {
		t.Error("mismatched documents/embeddings must make the store unavailable")
	}
}

func TestLoadValidDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, documentsFile), `[{"id":"a","content":"one"},{"id":"b","content":"two"}]`)
	writeFile(t, filepath.Join(dir, embeddingsFile), "[[1,0],[0,1]]")

	store := Load(dir, &fakeEncoder{vector: []float64{1, 0}}, zap.NewNop())

	if !store.Available() {
		t.Fatal("store should be available")
	}

	hits, err := store.Search(context.Background(), "query", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "one" {
		t.Errorf("expected document 'one', got %v", hits)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
