package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fahammohmd/pickme-go/internal/corpus"
	"github.com/fahammohmd/pickme-go/internal/logging"
	"github.com/fahammohmd/pickme-go/internal/rag"
)

// State is the Index Manager lifecycle state.
type State string

// Manager lifecycle states. CHECKING branches to REUSING or BUILDING, both
// end in READY; FAILED is terminal and reachable from any step.
const (
	StateUninitialized State = "uninitialized"
	StateChecking      State = "checking"
	StateReusing       State = "reusing"
	StateBuilding      State = "building"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Sentinel errors for the manager's failure taxonomy. Scanner failures
// surface corpus.ErrSourceUnavailable unwrapped.
var (
	// ErrCorruptIndex marks a persisted index that failed to deserialise.
	// It is recovered locally by forcing a rebuild, never surfaced as fatal.
	ErrCorruptIndex = errors.New("index: persisted index is corrupt")

	// ErrBuildInProgress is returned when another build holds the build lock
	// for the same index directory.
	ErrBuildInProgress = errors.New("index: another build is in progress")

	// ErrNotReady is returned by Index when the manager has not reached READY.
	ErrNotReady = errors.New("index: manager is not ready")
)

// Filenames inside the index directory.
const (
	indexFile   = "index.gob"
	indexTemp   = "index.gob.tmp"
	catalogFile = "catalog.db"
	lockFile    = "build.lock"
)

// defaultBatchSize is the number of chunk texts sent to the embedder per
// request during a build.
const defaultBatchSize = 32

// Config holds the Index Manager configuration. ChunkSize, ChunkOverlap, and
// the embedder's model identifier participate in the corpus fingerprint, so
// changing any of them invalidates the persisted index.
type Config struct {
	// DocumentsRoot is the directory scanned for source documents.
	DocumentsRoot string
	// IndexDir is where the serialised index and catalog live. Created if absent.
	IndexDir string
	// ChunkSize is the chunk window size in runes (default 512).
	ChunkSize int
	// ChunkOverlap is the chunk overlap in runes (default 20).
	ChunkOverlap int
	// EmbeddingModel identifies the embedding model, for fingerprinting and
	// the catalog record.
	EmbeddingModel string
	// BatchSize is the embedding batch size during builds (default 32).
	BatchSize int
	// ForceRebuild skips the fingerprint check and always rebuilds.
	ForceRebuild bool
	// Logger is the structured logger. Defaults to logging.New().
	Logger *slog.Logger
}

// Manager orchestrates scan → fingerprint comparison → (reuse | rebuild) →
// ready. One Manager is constructed per process and passed to the query
// engine; it owns the vector index and the catalog reference — no ambient
// globals.
//
// Open is meant to run once at startup and is not designed for concurrent
// invocation; a cross-process build against the same index directory is
// rejected via the build lock.
type Manager struct {
	// cfg is the resolved configuration.
	cfg *Config
	// embedder computes chunk vectors during builds.
	embedder rag.Embedder
	// scanner enumerates the documents root.
	scanner *corpus.Scanner
	// chunker splits documents into overlapping spans.
	chunker *corpus.Chunker
	// log is the structured logger.
	log *slog.Logger

	// mu guards state, idx, and fingerprint.
	mu sync.Mutex
	// state is the current lifecycle state.
	state State
	// idx is the ready vector index; nil until READY.
	idx rag.VectorIndex
	// fingerprint is the corpus fingerprint of the ready index.
	fingerprint string
}

// NewManager constructs a Manager. The embedder is required; config values
// fall back to the documented defaults.
func NewManager(embedder rag.Embedder, cfg *Config) (*Manager, error) {
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if cfg == nil || cfg.DocumentsRoot == "" {
		return nil, fmt.Errorf("index: DocumentsRoot must be set")
	}
	if cfg.IndexDir == "" {
		return nil, fmt.Errorf("index: IndexDir must be set")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	return &Manager{
		cfg:      cfg,
		embedder: embedder,
		scanner:  corpus.NewScanner(cfg.DocumentsRoot, log),
		chunker:  corpus.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		log:      log,
		state:    StateUninitialized,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fingerprint returns the corpus fingerprint of the ready index, or empty
// before READY.
func (m *Manager) Fingerprint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprint
}

// Index returns the ready vector index. Queries against it are read-only and
// safe across concurrent sessions.
func (m *Manager) Index() (rag.VectorIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady || m.idx == nil {
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, m.state)
	}
	return m.idx, nil
}

// setState records a lifecycle transition with a log line.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	m.log.Debug("index: state transition",
		slog.String("from", string(prev)),
		slog.String("to", string(s)),
	)
}

// Open runs the startup state machine: scan the documents root, compare the
// corpus fingerprint against the catalog, then either load the persisted
// index (REUSING — no embeddings recomputed) or build a fresh one (BUILDING)
// and atomically replace the persisted record. On return with nil error the
// manager is READY; otherwise it is FAILED and no partial index is exposed.
func (m *Manager) Open(ctx context.Context) error {
	if err := m.open(ctx); err != nil {
		m.setState(StateFailed)
		return err
	}
	return nil
}

func (m *Manager) open(ctx context.Context) error {
	m.setState(StateChecking)

	docs, err := m.scanner.Scan()
	if err != nil {
		return err
	}

	params := corpus.BuildParams{
		ChunkSize:      m.cfg.ChunkSize,
		ChunkOverlap:   m.cfg.ChunkOverlap,
		EmbeddingModel: m.cfg.EmbeddingModel,
	}
	current := corpus.Fingerprint(docs, params)

	if err := os.MkdirAll(m.cfg.IndexDir, 0o755); err != nil {
		return fmt.Errorf("index: create index dir %s: %w", m.cfg.IndexDir, err)
	}

	cat, err := OpenCatalog(filepath.Join(m.cfg.IndexDir, catalogFile))
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	if !m.cfg.ForceRebuild {
		if idx, ok := m.tryReuse(ctx, cat, current); ok {
			m.mu.Lock()
			m.idx = idx
			m.fingerprint = current
			m.mu.Unlock()
			m.setState(StateReady)
			m.log.Info("index: reusing persisted index",
				slog.Int("documents", len(docs)),
				slog.Int("chunks", idx.Count()),
			)
			return nil
		}
	}

	idx, chunkCount, perDoc, err := m.build(ctx, docs, current, cat)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.idx = idx
	m.fingerprint = current
	m.mu.Unlock()
	m.setState(StateReady)
	m.log.Info("index: build complete",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", chunkCount),
		slog.Int("catalogued", len(perDoc)),
	)
	return nil
}

// tryReuse checks the catalog fingerprint against the current scan and, on a
// match, deserialises the persisted index. Any failure — missing record,
// fingerprint mismatch, unreadable or corrupt index file — returns false so
// the caller falls through to a rebuild. Corruption is logged, never fatal.
func (m *Manager) tryReuse(ctx context.Context, cat *Catalog, current string) (rag.VectorIndex, bool) {
	rec, err := cat.Record(ctx)
	if err != nil {
		m.log.Warn("index: catalog unreadable, rebuilding", slog.Any("error", err))
		return nil, false
	}
	if rec == nil {
		m.log.Info("index: no persisted record, building")
		return nil, false
	}
	if rec.Fingerprint != current {
		m.log.Info("index: corpus changed since last build, rebuilding",
			slog.String("stored", shortFP(rec.Fingerprint)),
			slog.String("current", shortFP(current)),
		)
		return nil, false
	}

	idx, err := rag.LoadIndex(filepath.Join(m.cfg.IndexDir, indexFile))
	if err != nil {
		m.log.Warn("index: persisted index unusable, rebuilding",
			slog.Any("error", fmt.Errorf("%w: %v", ErrCorruptIndex, err)),
		)
		return nil, false
	}

	m.setState(StateReusing)
	return idx, true
}

// build chunks every document, embeds each chunk, assembles a fresh index,
// and persists it with write-new-then-swap so a prior record is never left
// both stale and reported valid. An empty corpus is a valid build producing
// a zero-chunk index.
func (m *Manager) build(ctx context.Context, docs []corpus.Document, fingerprint string, cat *Catalog) (rag.VectorIndex, int, []DocumentRecord, error) {
	m.setState(StateBuilding)

	unlock, err := m.acquireLock()
	if err != nil {
		return nil, 0, nil, err
	}
	defer unlock()

	idx, err := rag.NewChromemIndex()
	if err != nil {
		return nil, 0, nil, err
	}

	perDoc := make([]DocumentRecord, 0, len(docs))
	var allChunks []corpus.Chunk
	for _, doc := range docs {
		chunks := m.chunker.Split(doc)
		perDoc = append(perDoc, DocumentRecord{
			Path:   doc.Path,
			Digest: doc.Digest,
			Chunks: len(chunks),
		})
		allChunks = append(allChunks, chunks...)
	}

	for start := 0; start < len(allChunks); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(allChunks) {
			end = len(allChunks)
		}
		batch := allChunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("index: embedding batch %d-%d: %w", start, end, err)
		}
		if err := idx.Insert(ctx, batch, vectors); err != nil {
			return nil, 0, nil, err
		}
	}

	// Write-new-then-swap: the temp file becomes the live index in one
	// rename, then the catalog fingerprint is updated. A crash in between
	// leaves a mismatching stored fingerprint, which forces a rebuild on
	// the next run instead of serving a stale record as valid.
	tempPath := filepath.Join(m.cfg.IndexDir, indexTemp)
	livePath := filepath.Join(m.cfg.IndexDir, indexFile)

	if err := idx.SaveTo(tempPath); err != nil {
		return nil, 0, nil, err
	}
	if err := os.Rename(tempPath, livePath); err != nil {
		return nil, 0, nil, fmt.Errorf("index: swap %s into place: %w", indexFile, err)
	}

	rec := &BuildRecord{
		Fingerprint:    fingerprint,
		DocCount:       len(docs),
		ChunkCount:     len(allChunks),
		EmbeddingModel: m.cfg.EmbeddingModel,
		ChunkSize:      m.cfg.ChunkSize,
		ChunkOverlap:   m.cfg.ChunkOverlap,
		BuiltAt:        time.Now(),
	}
	if err := cat.SetRecord(ctx, rec, perDoc); err != nil {
		return nil, 0, nil, err
	}

	return idx, len(allChunks), perDoc, nil
}

// shortFP truncates a fingerprint for log output. Stored fingerprints come
// from the catalog and may be malformed, so the slice is length-guarded.
func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// acquireLock creates the build lock file exclusively. A pre-existing lock
// means another process is mid-build against the same index directory. A
// crashed build can leave the lock behind; the error message names the file
// so the operator can remove it.
func (m *Manager) acquireLock() (func(), error) {
	path := filepath.Join(m.cfg.IndexDir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: remove %s if no build is running", ErrBuildInProgress, path)
		}
		return nil, fmt.Errorf("index: create build lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d\n", os.Getpid())
	_ = f.Close()

	return func() {
		if err := os.Remove(path); err != nil {
			m.log.Warn("index: failed to remove build lock", slog.Any("error", err))
		}
	}, nil
}
