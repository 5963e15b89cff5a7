package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

// Key derives the content address of an extraction. Only inputs that can
// change the extracted graph take part; verbosity and optimizer settings do
// not. Vocabularies are sorted so their order does not matter.
func Key(cfg common.ExtractionConfig) string {
	nodes := slices.Clone(cfg.Schema.AllowedNodes())
	rels := slices.Clone(cfg.Schema.AllowedRelationships())
	slices.Sort(nodes)
	slices.Sort(rels)
	if nodes == nil {
		nodes = []string{}
	}
	if rels == nil {
		rels = []string{}
	}

	textSum := sha256.Sum256([]byte(cfg.Text))

	// encoding/json writes map keys in sorted order.
	payload := map[string]any{
		"novel":                 cfg.NovelID,
		"chapter":               cfg.ChapterID,
		"model":                 cfg.Oracle.Model,
		"local":                 cfg.Oracle.Local,
		"context_window":        cfg.Oracle.ContextWindow,
		"chunk_size":            cfg.ChunkSize,
		"chunk_overlap":         cfg.ChunkOverlap,
		"schema_name":           cfg.Schema.Name,
		"allowed_nodes":         nodes,
		"allowed_relationships": rels,
		"text_hash":             hex.EncodeToString(textSum[:]),
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsKey reports whether s has the shape of a cache key.
func IsKey(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
