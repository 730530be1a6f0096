package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// BuildParams are the configuration values that affect how a corpus is
// turned into an index. They are folded into the corpus fingerprint so that
// changing any of them invalidates a persisted index even when no document
// changed — a chunk boundary or embedding model change makes old vectors
// incompatible with new queries.
type BuildParams struct {
	// ChunkSize is the chunk window size in runes.
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks in runes.
	ChunkOverlap int
	// EmbeddingModel identifies the embedding model used at build time.
	EmbeddingModel string
}

// Fingerprint derives a single digest for the document set plus build
// parameters. It is a pure function of the (path, digest) pairs: two corpora
// with identical content produce identical fingerprints regardless of scan
// order, and any addition, removal, or content change produces a different
// fingerprint.
func Fingerprint(docs []Document, params BuildParams) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, d.Path+"\x00"+d.Digest)
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "v1\ncount=%d\nchunk_size=%d\nchunk_overlap=%d\nembedding_model=%s\n",
		len(docs), params.ChunkSize, params.ChunkOverlap, params.EmbeddingModel)
	h.Write([]byte(strings.Join(lines, "\n")))

	return hex.EncodeToString(h.Sum(nil))
}
