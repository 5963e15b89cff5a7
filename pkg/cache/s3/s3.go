// Package s3 stores cache artifacts as objects below a key prefix.
package s3

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/OFFIS-RIT/storygraph/internal/storage"
	"github.com/OFFIS-RIT/storygraph/pkg/cache"
)

type Store struct {
	bucket *storage.Bucket
	prefix string
}

// NewStore returns a store writing "<prefix>/<name>" objects into bucket.
func NewStore(bucket *storage.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.bucket.GetFile(ctx, s.objectKey(name))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, cache.ErrNotFound
	}
	return data, err
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	return s.bucket.PutFile(ctx, s.objectKey(name), data, "application/json")
}

// Remove deletes the object. S3 does not report missing keys on delete.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.bucket.DeleteFile(ctx, s.objectKey(name))
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	keys, err := s.bucket.ListFilesWithPrefix(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, listPrefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
