package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// CacheVersion is written into the metadata of every new entry.
const CacheVersion = "1.1"

const (
	payloadSuffix  = ".json"
	metadataSuffix = "_metadata.json"
	unknown        = "unknown"
)

// PayloadName and MetadataName return the artifact names of a key.
func PayloadName(key string) string  { return key + payloadSuffix }
func MetadataName(key string) string { return key + metadataSuffix }

// ContentCache stores merged chapter graphs under content-derived keys. Each
// entry is two artifacts: the graph and its metadata.
type ContentCache struct {
	store Store
	now   func() time.Time
}

// New returns a cache on top of store.
func New(store Store) *ContentCache {
	return &ContentCache{store: store, now: time.Now}
}

// Store returns the underlying artifact store.
func (c *ContentCache) Store() Store {
	return c.store
}

// NewMetadata builds the metadata for a freshly extracted chapter.
func NewMetadata(cfg common.ExtractionConfig, createdAt time.Time) common.CacheMetadata {
	return common.CacheMetadata{
		NovelID:       cfg.NovelID,
		ChapterID:     cfg.ChapterID,
		Model:         cfg.Oracle.Model,
		Local:         cfg.Oracle.Local,
		ContextWindow: cfg.Oracle.ContextWindow,
		ChunkSize:     cfg.ChunkSize,
		ChunkOverlap:  cfg.ChunkOverlap,
		ContentSize:   len([]rune(cfg.Text)),
		SchemaName:    cfg.Schema.Name,
		CacheVersion:  CacheVersion,
		CreatedAt:     createdAt.UTC(),
	}
}

// Get returns the cached graph for key. A missing entry is (nil, false, nil).
// A payload that cannot be decoded is removed together with its metadata and
// reported as a miss.
func (c *ContentCache) Get(ctx context.Context, key string) (*common.GraphDocument, bool, error) {
	data, err := c.store.Read(ctx, PayloadName(key))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}

	var doc common.GraphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("[Cache] removing corrupted entry", "err", &CorruptionError{Key: key, Err: err})
		if rmErr := c.Delete(ctx, key); rmErr != nil {
			logger.Error("[Cache] failed to remove corrupted entry", "key", key, "err", rmErr)
		}
		return nil, false, nil
	}
	logger.Debug("[Cache] hit", "key", key)
	return &doc, true, nil
}

// Put writes the graph and its metadata. The payload is written first so a
// reader never sees metadata without a payload.
func (c *ContentCache) Put(ctx context.Context, key string, doc common.GraphDocument, meta common.CacheMetadata) error {
	if doc.Nodes == nil {
		doc.Nodes = []common.Node{}
	}
	if doc.Relationships == nil {
		doc.Relationships = []common.Relationship{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: encode payload: %w", err)
	}
	if meta.CacheVersion == "" {
		meta.CacheVersion = CacheVersion
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = c.now().UTC()
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode metadata: %w", err)
	}

	if err := c.store.Write(ctx, PayloadName(key), data); err != nil {
		return fmt.Errorf("cache: write payload %s: %w", key, err)
	}
	if err := c.store.Write(ctx, MetadataName(key), metaData); err != nil {
		return fmt.Errorf("cache: write metadata %s: %w", key, err)
	}
	logger.Debug("[Cache] stored", "key", key, "nodes", len(doc.Nodes), "relationships", len(doc.Relationships))
	return nil
}

// Delete removes both artifacts of key. Missing artifacts are ignored.
func (c *ContentCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Remove(ctx, PayloadName(key)); err != nil {
		return fmt.Errorf("cache: remove payload %s: %w", key, err)
	}
	if err := c.store.Remove(ctx, MetadataName(key)); err != nil {
		return fmt.Errorf("cache: remove metadata %s: %w", key, err)
	}
	return nil
}

// Metadata returns the metadata of key. When the payload exists but its
// metadata is missing or unreadable, default metadata with unknown values is
// written and returned.
func (c *ContentCache) Metadata(ctx context.Context, key string) (common.CacheMetadata, error) {
	data, err := c.store.Read(ctx, MetadataName(key))
	if err == nil {
		var meta common.CacheMetadata
		if jsonErr := json.Unmarshal(data, &meta); jsonErr == nil {
			return meta, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return common.CacheMetadata{}, fmt.Errorf("cache: read metadata %s: %w", key, err)
	}

	if _, err := c.store.Read(ctx, PayloadName(key)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.CacheMetadata{}, ErrNotFound
		}
		return common.CacheMetadata{}, fmt.Errorf("cache: read payload %s: %w", key, err)
	}

	meta := defaultMetadata(c.now())
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return common.CacheMetadata{}, err
	}
	if err := c.store.Write(ctx, MetadataName(key), metaData); err != nil {
		logger.Warn("[Cache] failed to regenerate metadata", "key", key, "err", err)
	} else {
		logger.Info("[Cache] regenerated missing metadata", "key", key)
	}
	return meta, nil
}

func defaultMetadata(now time.Time) common.CacheMetadata {
	return common.CacheMetadata{
		NovelID:      unknown,
		ChapterID:    unknown,
		Model:        unknown,
		SchemaName:   unknown,
		CacheVersion: CacheVersion,
		CreatedAt:    now.UTC(),
	}
}

// Entry returns payload and metadata of key, or ErrNotFound.
func (c *ContentCache) Entry(ctx context.Context, key string) (*common.CacheEntry, error) {
	doc, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	meta, err := c.Metadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return &common.CacheEntry{Key: key, Payload: *doc, Metadata: meta}, nil
}

// EntryInfo describes a cache entry without its payload.
type EntryInfo struct {
	Key      string               `json:"key"`
	Size     int64                `json:"size"`
	Metadata common.CacheMetadata `json:"metadata"`
}

// Keys returns every key that has a payload, sorted.
func (c *ContentCache) Keys(ctx context.Context) ([]string, error) {
	names, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	var keys []string
	for _, name := range names {
		if strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		key, ok := strings.CutSuffix(name, payloadSuffix)
		if !ok || !IsKey(key) {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// List returns metadata and payload size of every entry, newest first.
func (c *ContentCache) List(ctx context.Context) ([]EntryInfo, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EntryInfo, 0, len(keys))
	for _, key := range keys {
		data, err := c.store.Read(ctx, PayloadName(key))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cache: read payload %s: %w", key, err)
		}
		meta, err := c.Metadata(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, EntryInfo{Key: key, Size: int64(len(data)), Metadata: meta})
	}
	slices.SortStableFunc(out, func(a, b EntryInfo) int {
		return b.Metadata.CreatedAt.Compare(a.Metadata.CreatedAt)
	})
	return out, nil
}

// Stats summarises the cache contents.
type Stats struct {
	Entries    int            `json:"entries"`
	TotalBytes int64          `json:"total_bytes"`
	Schemas    map[string]int `json:"schemas"`
	Models     map[string]int `json:"models"`
	Novels     map[string]int `json:"novels"`
	Oldest     *time.Time     `json:"oldest,omitempty"`
	Newest     *time.Time     `json:"newest,omitempty"`
}

// Stats counts entries, payload bytes and the schemas, models and novels in
// use.
func (c *ContentCache) Stats(ctx context.Context) (Stats, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Entries: len(entries),
		Schemas: map[string]int{},
		Models:  map[string]int{},
		Novels:  map[string]int{},
	}
	for _, e := range entries {
		s.TotalBytes += e.Size
		s.Schemas[e.Metadata.SchemaName]++
		s.Models[e.Metadata.Model]++
		s.Novels[e.Metadata.NovelID]++

		created := e.Metadata.CreatedAt
		if s.Oldest == nil || created.Before(*s.Oldest) {
			s.Oldest = &created
		}
		if s.Newest == nil || created.After(*s.Newest) {
			s.Newest = &created
		}
	}
	return s, nil
}

// FindBySchema returns the entries extracted with the named schema.
func (c *ContentCache) FindBySchema(ctx context.Context, schemaName string) ([]EntryInfo, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e EntryInfo) bool {
		return e.Metadata.SchemaName != schemaName
	}), nil
}

// Purge removes entries created more than olderThan ago and returns how many
// were removed. A non-positive age removes every entry.
func (c *ContentCache) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if olderThan > 0 && !e.Metadata.CreatedAt.Before(cutoff) {
			continue
		}
		if err := c.Delete(ctx, e.Key); err != nil {
			return removed, err
		}
		removed++
	}
	logger.Info("[Cache] purged entries", "removed", removed, "older_than", olderThan)
	return removed, nil
}
