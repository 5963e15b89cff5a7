// Package source reads chapter texts. Novels are directories (or key
// prefixes) and chapters are "<chapter>.txt" files inside them.
package source

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown novels or chapters.
var ErrNotFound = errors.New("source: not found")

// ChapterExt is the file extension of chapter texts.
const ChapterExt = ".txt"

// TextSource provides chapter texts and their listing.
type TextSource interface {
	Text(ctx context.Context, novelID, chapterID string) (string, error)
	Novels(ctx context.Context) ([]string, error)
	// Chapters returns the chapter ids of a novel in reading order.
	Chapters(ctx context.Context, novelID string) ([]string, error)
}

// ValidID reports whether id can be used as a single path segment.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Freshness remembers the modification time last seen per path, so readers
// can drop memoized content when the underlying file changes.
type Freshness struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewFreshness() *Freshness {
	return &Freshness{seen: map[string]time.Time{}}
}

// Changed records modTime for path and reports whether it differs from the
// previously recorded time. Unknown paths are always changed.
func (f *Freshness) Changed(path string, modTime time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.seen[path]
	f.seen[path] = modTime
	return !ok || !prev.Equal(modTime)
}

// Invalidate forgets path.
func (f *Freshness) Invalidate(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, path)
}

// Reset forgets every path.
func (f *Freshness) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.seen)
}

// CleanText normalizes a raw chapter: line endings become "\n", a leading BOM
// is dropped and every line is trimmed. Blank lines are kept as paragraph
// separators.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
