package rag

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fahammohmd/pickme-go/internal/corpus"
)

// testChunks is a tiny corpus with hand-built unit vectors: a and b are
// orthogonal, c sits between them but closer to a.
func testChunks() ([]corpus.Chunk, [][]float32) {
	chunks := []corpus.Chunk{
		{SourcePath: "a.txt", Ordinal: 0, Text: "revenue grew 10%"},
		{SourcePath: "b.txt", Ordinal: 0, Text: "margins compressed"},
		{SourcePath: "c.txt", Ordinal: 0, Text: "revenue outlook stable"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	return chunks, vectors
}

func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	chunks, vectors := testChunks()
	if err := idx.Insert(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return idx
}

func TestChromemIndex_QueryOrdering(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.SourcePath != "a.txt" {
		t.Errorf("expected a.txt nearest, got %s", results[0].Chunk.SourcePath)
	}
	if results[1].Chunk.SourcePath != "c.txt" {
		t.Errorf("expected c.txt second, got %s", results[1].Chunk.SourcePath)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not in ascending distance order at %d: %v then %v",
				i, results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestChromemIndex_KCappedAtCount(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected k capped at 3, got %d results", len(results))
	}
}

func TestChromemIndex_EmptyIndexQuery(t *testing.T) {
	t.Parallel()

	idx, err := NewChromemIndex()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if idx.Count() != 0 {
		t.Fatalf("expected empty index, count=%d", idx.Count())
	}

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("query on empty index should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestChromemIndex_InsertMismatchedLengths(t *testing.T) {
	t.Parallel()

	idx, err := NewChromemIndex()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	chunks, _ := testChunks()
	if err := idx.Insert(context.Background(), chunks, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected error for mismatched chunks/vectors lengths")
	}
}

func TestChromemIndex_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "index.gob")

	if err := idx.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Count() != idx.Count() {
		t.Fatalf("count mismatch after load: %d != %d", loaded.Count(), idx.Count())
	}

	query := []float32{0.7, 0.3, 0}
	before, err := idx.Query(context.Background(), query, 3)
	if err != nil {
		t.Fatalf("query before save: %v", err)
	}
	after, err := loaded.Query(context.Background(), query, 3)
	if err != nil {
		t.Fatalf("query after load: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count mismatch: %d != %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Chunk != after[i].Chunk {
			t.Errorf("result %d chunk mismatch: %+v != %+v", i, before[i].Chunk, after[i].Chunk)
		}
		if before[i].Distance != after[i].Distance {
			t.Errorf("result %d distance mismatch: %v != %v", i, before[i].Distance, after[i].Distance)
		}
	}
}

func TestLoadIndex_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadIndex(filepath.Join(t.TempDir(), "nope.gob")); err == nil {
		t.Error("expected error loading missing index file")
	}
}

func TestLoadIndex_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.gob")
	if err := writeGarbage(path); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, err := LoadIndex(path); err == nil {
		t.Error("expected error loading corrupt index file")
	}
}
