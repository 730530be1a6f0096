package rag

import (
	"context"
	"errors"
	"os"
	"testing"
)

// writeGarbage writes bytes that are not a valid serialised index.
func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not a gob stream"), 0o644)
}

// fakeEmbedder returns canned vectors, or a fixed error.
type fakeEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vectors[i%len(f.vectors)]
	}
	return out, nil
}

func TestRetrieve_ReturnsNearestChunks(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	emb := &fakeEmbedder{vectors: [][]float32{{1, 0, 0}}}

	r, err := NewRetriever(emb, idx, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "growth", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.SourcePath != "a.txt" {
		t.Errorf("expected a.txt first, got %s", results[0].Chunk.SourcePath)
	}
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	emb := &fakeEmbedder{vectors: [][]float32{{1, 0, 0}}}

	r, err := NewRetriever(emb, idx, 1)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "growth", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected defaultTopK=1 result, got %d", len(results))
	}
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	emb := &fakeEmbedder{err: errors.New("connection refused")}

	r, err := NewRetriever(emb, idx, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "growth", 2); !errors.Is(err, ErrQueryEmbedding) {
		t.Errorf("expected ErrQueryEmbedding when embedder fails, got %v", err)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	t.Parallel()

	idx, err := NewChromemIndex()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	emb := &fakeEmbedder{vectors: [][]float32{{1, 0, 0}}}

	r, err := NewRetriever(emb, idx, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "growth", 3)
	if err != nil {
		t.Fatalf("retrieve on empty index should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results from empty index, got %d", len(results))
	}
}

func TestNewRetriever_NilDependencies(t *testing.T) {
	t.Parallel()

	idx, _ := NewChromemIndex()
	if _, err := NewRetriever(nil, idx, 5); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 5); err == nil {
		t.Error("expected error for nil index")
	}
}

// Guard against accidental interface drift.
var _ VectorIndex = (*ChromemIndex)(nil)
var _ Retriever = (*DefaultRetriever)(nil)
