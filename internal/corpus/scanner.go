// Package corpus implements document discovery, content fingerprinting, and
// chunking for the PickMe knowledge base. The scanner walks the documents
// root, the fingerprint functions derive a single digest for the corpus as a
// whole, and the chunker splits document text into overlapping spans ready
// for embedding.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fahammohmd/pickme-go/internal/logging"
)

// ErrSourceUnavailable is returned when the documents root does not exist or
// cannot be read at all. Individual unreadable files are skipped, not fatal.
var ErrSourceUnavailable = errors.New("corpus: documents root unavailable")

// Document is a single source file as seen by one scan. Immutable once
// scanned for a given run.
type Document struct {
	// Path is the file path relative to the documents root.
	Path string
	// Content is the raw text content of the file.
	Content string
	// Digest is the hex-encoded SHA-256 of Content.
	Digest string
	// ModTime is the file modification time at scan time. Informational
	// only — change detection is content-based, never mtime-based.
	ModTime time.Time
}

// textExtensions is the set of file extensions the scanner treats as
// text-bearing. Anything else is skipped with a debug log.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".rst":      true,
	".csv":      true,
	".json":     true,
	".html":     true,
	".htm":      true,
	".xml":      true,
	".yaml":     true,
	".yml":      true,
	".log":      true,
}

// Scanner enumerates the files under a documents root.
type Scanner struct {
	// root is the directory to scan recursively.
	root string
	// log is the structured logger for skip/warn events.
	log *slog.Logger
}

// NewScanner constructs a Scanner for the given documents root.
func NewScanner(root string, log *slog.Logger) *Scanner {
	if log == nil {
		log = logging.New()
	}
	return &Scanner{root: root, log: log}
}

// Scan walks the documents root recursively and returns one Document per
// readable text-bearing file. A single unreadable or unsupported file is a
// local failure — logged and skipped — not a scan failure. Ordering of the
// returned slice is not specified; fingerprint composition is
// order-independent.
//
// Returns ErrSourceUnavailable if the root itself is missing or unreadable.
func (s *Scanner) Scan() ([]Document, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, s.root)
	}

	var docs []Document
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.root, err)
			}
			s.log.Warn("corpus: skipping unreadable entry",
				slog.String("path", path),
				slog.Any("error", err),
			)
			return nil
		}
		if d.IsDir() {
			// Hidden directories (e.g. .git) are never part of the corpus.
			if d.Name() != "." && strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !textExtensions[ext] {
			s.log.Debug("corpus: skipping unsupported file", slog.String("path", path))
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("corpus: skipping unreadable file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}

		var modTime time.Time
		if fi, err := d.Info(); err == nil {
			modTime = fi.ModTime()
		}

		docs = append(docs, Document{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
			Digest:  ContentDigest(content),
			ModTime: modTime,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return docs, nil
}

// ContentDigest returns the hex-encoded SHA-256 digest of raw content.
func ContentDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
