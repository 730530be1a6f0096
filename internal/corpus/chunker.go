package corpus

import "strings"

// Chunk is a contiguous sub-span of one document's text. It carries a
// back-reference to the source document path; the document itself owns the
// full content.
type Chunk struct {
	// SourcePath is the document this chunk was cut from.
	SourcePath string
	// Ordinal is the zero-based position of this chunk within the document.
	Ordinal int
	// Text is the chunk's text span.
	Text string
}

// Chunker splits document text into overlapping fixed-size windows.
// Window boundaries are measured in runes so multi-byte content is never
// split mid-character.
type Chunker struct {
	// size is the chunk window size in runes.
	size int
	// overlap is the number of runes shared between consecutive chunks.
	overlap int
}

// NewChunker constructs a Chunker. A non-positive size falls back to 512 and
// an overlap that is negative or not smaller than the size falls back to
// size/10 — the same guards the ingestion side applies to user config.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts a document's content into chunks. Leading/trailing whitespace is
// trimmed first; empty documents yield no chunks.
func (c *Chunker) Split(doc Document) []Chunk {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []Chunk

	step := c.size - c.overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			SourcePath: doc.Path,
			Ordinal:    len(chunks),
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// SplitAll chunks every document and returns the combined slice, preserving
// per-document chunk order.
func (c *Chunker) SplitAll(docs []Document) []Chunk {
	var all []Chunk
	for _, doc := range docs {
		all = append(all, c.Split(doc)...)
	}
	return all
}
