package rag

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/fahammohmd/pickme-go/internal/corpus"
)

// collectionName is the single chromem collection holding the knowledge
// base. The name is part of the serialised format — it must match between
// save and load.
const collectionName = "documents"

// Chunk metadata keys stored alongside each embedded document.
const (
	metaSource  = "source"
	metaOrdinal = "ordinal"
)

// ChromemIndex implements VectorIndex on top of an embedded chromem-go
// database. chromem uses cosine similarity over normalised vectors; Query
// reports distance = 1 - similarity so callers sort ascending.
//
// The index is built fully in memory and serialised wholesale with SaveTo —
// there are no partial or incremental updates.
type ChromemIndex struct {
	// db is the underlying embedded vector database.
	db *chromem.DB
	// coll is the single collection holding all chunks.
	coll *chromem.Collection
}

// NewChromemIndex constructs an empty in-memory index ready for Insert.
func NewChromemIndex() (*ChromemIndex, error) {
	db := chromem.NewDB()
	coll, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: create collection: %w", err)
	}
	return &ChromemIndex{db: db, coll: coll}, nil
}

// LoadIndex deserialises an index previously written by SaveTo. No
// embeddings are recomputed — this is the cheap restart path. Any read or
// decode failure is returned to the caller, which treats the persisted
// record as corrupt and rebuilds.
func LoadIndex(path string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, ""); err != nil {
		return nil, fmt.Errorf("rag: import index from %s: %w", path, err)
	}
	coll := db.GetCollection(collectionName, nil)
	if coll == nil {
		return nil, fmt.Errorf("rag: index at %s has no %q collection", path, collectionName)
	}
	return &ChromemIndex{db: db, coll: coll}, nil
}

// Insert adds chunks with their pre-computed embeddings.
func (x *ChromemIndex) Insert(ctx context.Context, chunks []corpus.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("rag: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        chunkID(ch),
			Content:   ch.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				metaSource:  ch.SourcePath,
				metaOrdinal: strconv.Itoa(ch.Ordinal),
			},
		}
	}

	if err := x.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("rag: add documents: %w", err)
	}
	return nil
}

// Query returns up to k nearest chunks by cosine distance, ascending.
func (x *ChromemIndex) Query(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	count := x.coll.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := x.coll.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		ordinal, _ := strconv.Atoi(r.Metadata[metaOrdinal])
		out[i] = SearchResult{
			Chunk: corpus.Chunk{
				SourcePath: r.Metadata[metaSource],
				Ordinal:    ordinal,
				Text:       r.Content,
			},
			Distance: 1 - r.Similarity,
		}
	}
	return out, nil
}

// Count reports the number of stored chunks.
func (x *ChromemIndex) Count() int {
	return x.coll.Count()
}

// SaveTo serialises the full index to path (uncompressed gob). Callers that
// need atomic replacement write to a temporary path and rename.
func (x *ChromemIndex) SaveTo(path string) error {
	if err := x.db.ExportToFile(path, false, ""); err != nil {
		return fmt.Errorf("rag: export index to %s: %w", path, err)
	}
	return nil
}

// chunkID derives a stable unique identifier for a chunk from its source
// path and ordinal.
func chunkID(ch corpus.Chunk) string {
	return ch.SourcePath + "#" + strconv.Itoa(ch.Ordinal)
}
