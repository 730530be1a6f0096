package rag

import (
	"context"
	"errors"
	"fmt"
)

// ErrQueryEmbedding marks a Retrieve failure in the query embedding step, as
// opposed to the vector search that follows it. Callers can errors.Is against
// it to tell the two collaborators apart.
var ErrQueryEmbedding = errors.New("rag: query embedding failed")

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorIndex. It embeds the query at retrieval time and delegates
// similarity search to the index.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index VectorIndex

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and
// VectorIndex. defaultTopK sets the fallback result count when Retrieve is
// called with topK=0.
func NewRetriever(embedder Embedder, index VectorIndex, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &DefaultRetriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k nearest chunks.
// If topK is 0 the defaultTopK configured at construction time is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbedding, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedder returned empty result", ErrQueryEmbedding)
	}

	results, err := r.index.Query(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return results, nil
}
