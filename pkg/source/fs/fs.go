// Package fs reads chapters from "<root>/<novel>/<chapter>.txt".
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"golang.org/x/sync/singleflight"
)

// Source memoizes cleaned chapter texts. A memoized text is dropped as soon
// as the file's modification time changes.
type Source struct {
	root  string
	fresh *source.Freshness

	cacheMu sync.RWMutex
	cache   map[string]string
	group   singleflight.Group
}

// NewSource returns a source rooted at root. fresh may be shared between
// sources; nil creates a private one.
func NewSource(root string, fresh *source.Freshness) *Source {
	if fresh == nil {
		fresh = source.NewFreshness()
	}
	return &Source{root: root, fresh: fresh, cache: map[string]string{}}
}

// Path returns the file path of a chapter.
func (s *Source) Path(novelID, chapterID string) (string, error) {
	if !source.ValidID(novelID) || !source.ValidID(chapterID) {
		return "", fmt.Errorf("invalid chapter %q/%q", novelID, chapterID)
	}
	return filepath.Join(s.root, novelID, chapterID+source.ChapterExt), nil
}

func (s *Source) Text(_ context.Context, novelID, chapterID string) (string, error) {
	path, err := s.Path(novelID, chapterID)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s/%s: %w", novelID, chapterID, source.ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	if s.fresh.Changed(path, info.ModTime()) {
		s.cacheMu.Lock()
		if _, ok := s.cache[path]; ok {
			logger.Debug("[Source] chapter changed on disk", "path", path)
		}
		delete(s.cache, path)
		s.cacheMu.Unlock()
	}

	s.cacheMu.RLock()
	if text, ok := s.cache[path]; ok {
		s.cacheMu.RUnlock()
		return text, nil
	}
	s.cacheMu.RUnlock()

	result, err, _ := s.group.Do(path, func() (any, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		text := source.CleanText(string(raw))

		s.cacheMu.Lock()
		s.cache[path] = text
		s.cacheMu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Novels lists the directories below root.
func (s *Source) Novels(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var novels []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			novels = append(novels, e.Name())
		}
	}
	slices.Sort(novels)
	return novels, nil
}

func (s *Source) Chapters(_ context.Context, novelID string) ([]string, error) {
	if !source.ValidID(novelID) {
		return nil, fmt.Errorf("invalid novel %q", novelID)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, novelID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", novelID, source.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var chapters []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := strings.CutSuffix(e.Name(), source.ChapterExt); ok && id != "" {
			chapters = append(chapters, id)
		}
	}
	source.SortChapters(chapters)
	return chapters, nil
}
