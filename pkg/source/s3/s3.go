// Package s3 reads chapters from "<prefix>/<novel>/<chapter>.txt" objects.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/storygraph/internal/storage"
	"github.com/OFFIS-RIT/storygraph/pkg/source"
)

type Source struct {
	bucket *storage.Bucket
	prefix string
}

func NewSource(bucket *storage.Bucket, prefix string) *Source {
	return &Source{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Source) dir(parts ...string) string {
	p := path.Join(append([]string{s.prefix}, parts...)...)
	if p == "" || p == "." {
		return ""
	}
	return p + "/"
}

// Key returns the object key of a chapter.
func (s *Source) Key(novelID, chapterID string) (string, error) {
	if !source.ValidID(novelID) || !source.ValidID(chapterID) {
		return "", fmt.Errorf("invalid chapter %q/%q", novelID, chapterID)
	}
	return s.dir(novelID) + chapterID + source.ChapterExt, nil
}

func (s *Source) Text(ctx context.Context, novelID, chapterID string) (string, error) {
	key, err := s.Key(novelID, chapterID)
	if err != nil {
		return "", err
	}
	data, err := s.bucket.GetFile(ctx, key)
	if errors.Is(err, storage.ErrNotExist) {
		return "", fmt.Errorf("%s/%s: %w", novelID, chapterID, source.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return source.CleanText(string(data)), nil
}

// Novels returns the first path segment of every object below the prefix.
func (s *Source) Novels(ctx context.Context) ([]string, error) {
	root := s.dir()
	keys, err := s.bucket.ListFilesWithPrefix(ctx, root)
	if err != nil {
		return nil, err
	}
	var novels []string
	for _, k := range keys {
		novel, rest, ok := strings.Cut(strings.TrimPrefix(k, root), "/")
		if !ok || novel == "" || rest == "" || slices.Contains(novels, novel) {
			continue
		}
		novels = append(novels, novel)
	}
	slices.Sort(novels)
	return novels, nil
}

func (s *Source) Chapters(ctx context.Context, novelID string) ([]string, error) {
	if !source.ValidID(novelID) {
		return nil, fmt.Errorf("invalid novel %q", novelID)
	}
	dir := s.dir(novelID)
	keys, err := s.bucket.ListFilesWithPrefix(ctx, dir)
	if err != nil {
		return nil, err
	}
	var chapters []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, dir)
		if strings.Contains(name, "/") {
			continue
		}
		if id, ok := strings.CutSuffix(name, source.ChapterExt); ok && id != "" {
			chapters = append(chapters, id)
		}
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%s: %w", novelID, source.ErrNotFound)
	}
	source.SortChapters(chapters)
	return chapters, nil
}
