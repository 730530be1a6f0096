// Package rag defines the retrieval components for the PickMe assistant:
// vector index, embedding, and query-time retrieval. Concrete
// implementations (chromem-backed index, HTTP embedders) satisfy these
// interfaces so the query engine never depends on a specific backend.
package rag

import (
	"context"

	"github.com/fahammohmd/pickme-go/internal/corpus"
)

// SearchResult is one retrieved chunk with its query distance.
type SearchResult struct {
	// Chunk is the retrieved document span.
	Chunk corpus.Chunk
	// Distance is the cosine distance between the query vector and the
	// chunk's vector (0 = identical direction). Results are ordered by
	// ascending distance, nearest first.
	Distance float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must be
// deterministic: identical input text yields an identical vector.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a nearest-neighbour structure over chunk embeddings.
// An index is populated once at build time and is read-only afterwards;
// queries may run concurrently.
type VectorIndex interface {
	// Insert adds chunks with their pre-computed embeddings. The vectors
	// slice must be parallel to chunks — vectors[i] belongs to chunks[i].
	Insert(ctx context.Context, chunks []corpus.Chunk, vectors [][]float32) error

	// Query returns up to k results ordered by ascending distance. k is
	// capped at the number of stored chunks; a zero-chunk index returns an
	// empty result set, never an error.
	Query(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Count reports the number of stored chunks.
	Count() int

	// SaveTo serialises the index to the given file path. A saved index
	// loaded back via LoadIndex returns identical query results.
	SaveTo(path string) error
}

// Retriever fetches the most relevant chunks for a query string. It combines
// embedding and vector search so callers pass text, not vectors.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error)
}
