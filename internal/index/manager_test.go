package index

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fahammohmd/pickme-go/internal/corpus"
)

// hashEmbedder is a deterministic fake embedder: the vector is derived from
// the text's digest, so identical text always gets an identical vector. It
// counts calls so tests can assert that reuse never recomputes embeddings.
type hashEmbedder struct {
	calls atomic.Int64
	err   error
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32(sum[j]) / 255
		}
		out[i] = vec
	}
	return out, nil
}

// newTestManager wires a Manager over a temp documents root and index dir.
func newTestManager(t *testing.T, docsRoot string, emb *hashEmbedder, force bool) *Manager {
	t.Helper()
	m, err := NewManager(emb, &Config{
		DocumentsRoot:  docsRoot,
		IndexDir:       filepath.Join(t.TempDir(), "storage"),
		ChunkSize:      64,
		ChunkOverlap:   8,
		EmbeddingModel: "fake-embed",
		ForceRebuild:   force,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// reopen constructs a second Manager over the same directories, simulating a
// process restart.
func reopen(t *testing.T, m *Manager, emb *hashEmbedder) *Manager {
	t.Helper()
	next, err := NewManager(emb, &Config{
		DocumentsRoot:  m.cfg.DocumentsRoot,
		IndexDir:       m.cfg.IndexDir,
		ChunkSize:      m.cfg.ChunkSize,
		ChunkOverlap:   m.cfg.ChunkOverlap,
		EmbeddingModel: m.cfg.EmbeddingModel,
	})
	if err != nil {
		t.Fatalf("reopen manager: %v", err)
	}
	return next
}

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestOpen_FirstRunBuildsAndPersists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	m := newTestManager(t, root, emb, false)

	if m.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", m.State())
	}
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.State() != StateReady {
		t.Fatalf("expected ready, got %s", m.State())
	}
	if emb.calls.Load() == 0 {
		t.Error("expected embedder to be called during first build")
	}

	if _, err := os.Stat(filepath.Join(m.cfg.IndexDir, indexFile)); err != nil {
		t.Errorf("persisted index file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.cfg.IndexDir, catalogFile)); err != nil {
		t.Errorf("catalog missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.cfg.IndexDir, lockFile)); !os.IsNotExist(err) {
		t.Error("build lock left behind after successful build")
	}
}

func TestOpen_UnchangedCorpusReuses(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}
	firstIdx, err := first.Index()
	if err != nil {
		t.Fatalf("first index: %v", err)
	}

	query, err := emb.Embed(context.Background(), []string{"growth"})
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	want, err := firstIdx.Query(context.Background(), query[0], 3)
	if err != nil {
		t.Fatalf("query original: %v", err)
	}

	buildCalls := emb.calls.Load()

	second := reopen(t, first, emb)
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if second.State() != StateReady {
		t.Fatalf("expected ready, got %s", second.State())
	}
	// Embedder must not run at all on the reuse path.
	if got := emb.calls.Load(); got != buildCalls {
		t.Errorf("reuse recomputed embeddings: %d calls before, %d after", buildCalls, got)
	}
	if second.Fingerprint() != first.Fingerprint() {
		t.Errorf("fingerprint changed across restart without edits")
	}

	secondIdx, err := second.Index()
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	got, err := secondIdx.Query(context.Background(), query[0], 3)
	if err != nil {
		t.Fatalf("query reused: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count mismatch: %d != %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d differs after reuse: %+v != %+v", i, got[i], want[i])
		}
	}
}

func TestOpen_ContentEditTriggersRebuild(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}

	writeDoc(t, root, "A.txt", "revenue grew 12%")
	buildCalls := emb.calls.Load()

	second := reopen(t, first, emb)
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected a rebuild after content edit, embedder never ran")
	}
	if second.Fingerprint() == first.Fingerprint() {
		t.Error("fingerprint unchanged after content edit")
	}

	// The new record's fingerprint matches the new corpus.
	cat, err := OpenCatalog(filepath.Join(second.cfg.IndexDir, catalogFile))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer cat.Close()
	rec, err := cat.Record(context.Background())
	if err != nil || rec == nil {
		t.Fatalf("record: %v (%v)", rec, err)
	}
	if rec.Fingerprint != second.Fingerprint() {
		t.Errorf("stored fingerprint %s != current %s", rec.Fingerprint, second.Fingerprint())
	}
}

func TestOpen_AddedDocumentTriggersRebuild(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}

	writeDoc(t, root, "B.txt", "margins compressed")
	buildCalls := emb.calls.Load()

	second := reopen(t, first, emb)
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected a rebuild after adding a document")
	}
}

func TestOpen_CorruptIndexFileRebuilds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}

	// Truncate the persisted index: fingerprints still match, but the load
	// must fail and fall through to a rebuild rather than crash.
	if err := os.WriteFile(filepath.Join(first.cfg.IndexDir, indexFile), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}
	buildCalls := emb.calls.Load()

	second := reopen(t, first, emb)
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("open with corrupt index: %v", err)
	}
	if second.State() != StateReady {
		t.Fatalf("expected ready after recovery, got %s", second.State())
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected rebuild after corrupt index file")
	}
}

func TestOpen_CorruptCatalogRecordRebuilds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}

	// Overwrite the catalog record with a truncated fingerprint, shorter than
	// anything a real build writes. The next open must treat it as a mismatch
	// and rebuild, not crash on the stored value.
	cat, err := OpenCatalog(filepath.Join(first.cfg.IndexDir, catalogFile))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	if err := cat.SetRecord(context.Background(), &BuildRecord{Fingerprint: "abc"}, nil); err != nil {
		t.Fatalf("set record: %v", err)
	}
	cat.Close()
	buildCalls := emb.calls.Load()

	second := reopen(t, first, emb)
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("open with corrupt record: %v", err)
	}
	if second.State() != StateReady {
		t.Fatalf("expected ready after recovery, got %s", second.State())
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected rebuild after corrupt catalog record")
	}
	if second.Fingerprint() == "abc" {
		t.Error("corrupt fingerprint survived the rebuild")
	}
}

func TestShortFP(t *testing.T) {
	t.Parallel()

	if got := shortFP("abc"); got != "abc" {
		t.Errorf("short input: got %q", got)
	}
	if got := shortFP("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("long input: got %q", got)
	}
	if got := shortFP(""); got != "" {
		t.Errorf("empty input: got %q", got)
	}
}

func TestOpen_EmptyCorpusReachesReady(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{}
	m := newTestManager(t, t.TempDir(), emb, false)

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.State() != StateReady {
		t.Fatalf("expected ready, got %s", m.State())
	}

	idx, err := m.Index()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("expected zero-chunk index, got %d", idx.Count())
	}

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("query on zero-chunk index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestOpen_MissingRootFails(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{}
	m := newTestManager(t, filepath.Join(t.TempDir(), "nope"), emb, false)

	err := m.Open(context.Background())
	if !errors.Is(err, corpus.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if m.State() != StateFailed {
		t.Errorf("expected failed, got %s", m.State())
	}
	if _, err := m.Index(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady from Index, got %v", err)
	}
}

func TestOpen_EmbedderFailureFails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{err: errors.New("connection refused")}
	m := newTestManager(t, root, emb, false)

	if err := m.Open(context.Background()); err == nil {
		t.Fatal("expected failure when embedder is unavailable")
	}
	if m.State() != StateFailed {
		t.Errorf("expected failed, got %s", m.State())
	}
}

func TestOpen_BuildLockRejectsSecondBuild(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	m := newTestManager(t, root, emb, false)

	if err := os.MkdirAll(m.cfg.IndexDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(m.cfg.IndexDir, lockFile), []byte("pid=999\n"), 0o644); err != nil {
		t.Fatalf("plant lock: %v", err)
	}

	err := m.Open(context.Background())
	if !errors.Is(err, ErrBuildInProgress) {
		t.Fatalf("expected ErrBuildInProgress, got %v", err)
	}
	if m.State() != StateFailed {
		t.Errorf("expected failed, got %s", m.State())
	}
}

func TestOpen_ForceRebuildSkipsReuse(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}
	buildCalls := emb.calls.Load()

	forced, err := NewManager(emb, &Config{
		DocumentsRoot:  first.cfg.DocumentsRoot,
		IndexDir:       first.cfg.IndexDir,
		ChunkSize:      first.cfg.ChunkSize,
		ChunkOverlap:   first.cfg.ChunkOverlap,
		EmbeddingModel: first.cfg.EmbeddingModel,
		ForceRebuild:   true,
	})
	if err != nil {
		t.Fatalf("new forced manager: %v", err)
	}
	if err := forced.Open(context.Background()); err != nil {
		t.Fatalf("forced open: %v", err)
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected forced rebuild to recompute embeddings")
	}
}

func TestOpen_ChunkConfigChangeTriggersRebuild(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "A.txt", "revenue grew 10%")

	emb := &hashEmbedder{}
	first := newTestManager(t, root, emb, false)
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("first open: %v", err)
	}
	buildCalls := emb.calls.Load()

	resized, err := NewManager(emb, &Config{
		DocumentsRoot:  first.cfg.DocumentsRoot,
		IndexDir:       first.cfg.IndexDir,
		ChunkSize:      32,
		ChunkOverlap:   4,
		EmbeddingModel: first.cfg.EmbeddingModel,
	})
	if err != nil {
		t.Fatalf("new resized manager: %v", err)
	}
	if err := resized.Open(context.Background()); err != nil {
		t.Fatalf("resized open: %v", err)
	}
	if emb.calls.Load() == buildCalls {
		t.Error("expected chunk config change to invalidate the persisted index")
	}
}
