// Package diagnostics keeps the latest published diagnostics per file.
// Each publish replaces the previous set wholesale; there is no merging.
package diagnostics

import (
	"sync"

	"github.com/rkovacs/medit/internal/logger"
	"github.com/rkovacs/medit/internal/lsp"
)

// fileSet is one file's accepted publish, stamped with the buffer
// version it describes.
type fileSet struct {
	version int
	diags   []lsp.Diagnostic
}

// Store holds diagnostics keyed by file path. Safe for concurrent use;
// publishes arrive from LSP sessions while the UI loop reads. Readers
// pass the buffer's current version; a set stamped older than that
// describes text the user has since edited and is never returned.
type Store struct {
	mu    sync.Mutex
	files map[string]fileSet
}

func NewStore() *Store {
	return &Store{files: make(map[string]fileSet)}
}

// Publish replaces the diagnostic set for path. docVersion is the
// buffer's current sync version; a publish stamped with an older version
// describes text the user has already changed and is dropped. An
// unversioned publish is stamped with docVersion. Reports whether the
// set was accepted.
func (s *Store) Publish(path string, docVersion int, published *int, diags []lsp.Diagnostic) bool {
	stamp := docVersion
	if published != nil {
		if *published < docVersion {
			logger.Debug("stale diagnostics dropped",
				"path", path, "published", *published, "current", docVersion)
			return false
		}
		stamp = *published
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(diags) == 0 {
		delete(s.files, path)
		return true
	}
	s.files[path] = fileSet{version: stamp, diags: append([]lsp.Diagnostic(nil), diags...)}
	return true
}

// forFileLocked returns the live set for path, nil when the buffer has
// advanced past the version the set was published for.
func (s *Store) forFileLocked(path string, docVersion int) []lsp.Diagnostic {
	fs, ok := s.files[path]
	if !ok || fs.version < docVersion {
		return nil
	}
	return fs.diags
}

// ForFile returns the current set for path, nil when clean or when the
// set no longer matches docVersion.
func (s *Store) ForFile(path string, docVersion int) []lsp.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lsp.Diagnostic(nil), s.forFileLocked(path, docVersion)...)
}

// ForLine returns the diagnostics whose range covers line.
func (s *Store) ForLine(path string, line, docVersion int) []lsp.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []lsp.Diagnostic
	for _, d := range s.forFileLocked(path, docVersion) {
		if line >= d.Range.Start.Line && line <= d.Range.End.Line {
			out = append(out, d)
		}
	}
	return out
}

// MostSevere returns the highest-severity diagnostic on line. Severity
// values are ordered with error lowest, so the minimum wins.
func (s *Store) MostSevere(path string, line, docVersion int) (lsp.Diagnostic, bool) {
	var best lsp.Diagnostic
	found := false
	for _, d := range s.ForLine(path, line, docVersion) {
		if !found || severity(d) < severity(best) {
			best = d
			found = true
		}
	}
	return best, found
}

// Counts returns the number of errors and warnings for path. Info and
// hint diagnostics count as warnings for the status line.
func (s *Store) Counts(path string, docVersion int) (errors, warnings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.forFileLocked(path, docVersion) {
		if severity(d) == lsp.SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

// ClearFile drops the set for one path, used when a document closes.
func (s *Store) ClearFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// Clear drops everything, used when a server is disabled or restarted.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]fileSet)
}

// severity defaults an unset severity to error, matching servers that
// omit the field.
func severity(d lsp.Diagnostic) int {
	if d.Severity == 0 {
		return lsp.SeverityError
	}
	return d.Severity
}
