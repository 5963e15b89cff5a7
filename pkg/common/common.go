package common

import (
	"slices"
	"time"
)

// Node represents an entity in a narrative graph. Identity is the ID; two nodes
// with the same ID are the same entity regardless of type or properties.
//
// Properties should carry a display "name". The merger adds a
// "sequence_number" property recording the order in which the node was first
// seen across a chapter.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Relationship is a directed, typed edge between two nodes. Relationships are
// not unique: two edges with the same endpoints and type are both kept.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// GraphDocument is an ordered set of nodes plus the relationships between
// them. Node IDs are unique. Every relationship endpoint is guaranteed to
// exist only after merging.
type GraphDocument struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Empty reports whether the document has neither nodes nor relationships.
func (d GraphDocument) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Relationships) == 0
}

// Clone returns a deep copy of the document. Property maps are copied one level
// deep, which is enough since the pipeline never mutates nested values.
func (d GraphDocument) Clone() GraphDocument {
	out := GraphDocument{
		Nodes:         make([]Node, len(d.Nodes)),
		Relationships: make([]Relationship, len(d.Relationships)),
	}
	for i, n := range d.Nodes {
		out.Nodes[i] = Node{ID: n.ID, Type: n.Type, Properties: cloneProps(n.Properties)}
	}
	for i, r := range d.Relationships {
		out.Relationships[i] = Relationship{
			SourceID:   r.SourceID,
			TargetID:   r.TargetID,
			Type:       r.Type,
			Properties: cloneProps(r.Properties),
		}
	}
	return out
}

func cloneProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SchemaMode tags a Schema as either constraining the oracle's vocabulary or
// leaving it free.
type SchemaMode string

const (
	SchemaConstrained   SchemaMode = "constrained"
	SchemaUnconstrained SchemaMode = "unconstrained"
	// SchemaAuto schemas carry no vocabulary of their own. It is generated
	// from the text before extraction.
	SchemaAuto SchemaMode = "auto"
)

// Schema names the node and relationship vocabularies an extraction may use.
// In unconstrained mode the vocabularies are ignored and the oracle may emit
// any type.
type Schema struct {
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description" yaml:"description"`
	Mode          SchemaMode `json:"mode" yaml:"mode"`
	Elements      []string   `json:"elements" yaml:"elements"`
	Relationships []string   `json:"relationships" yaml:"relationships"`
}

// NewSchema returns a constrained schema.
func NewSchema(name, description string, elements, relationships []string) Schema {
	return Schema{
		Name:          name,
		Description:   description,
		Mode:          SchemaConstrained,
		Elements:      slices.Clone(elements),
		Relationships: slices.Clone(relationships),
	}
}

// UnconstrainedSchema returns a schema that places no limit on node or
// relationship types.
func UnconstrainedSchema(name, description string) Schema {
	return Schema{Name: name, Description: description, Mode: SchemaUnconstrained}
}

// AutoSchema returns a schema whose vocabulary is generated from the text.
func AutoSchema(name, description string) Schema {
	return Schema{Name: name, Description: description, Mode: SchemaAuto}
}

// Auto reports whether the vocabulary still has to be generated.
func (s Schema) Auto() bool {
	return s.Mode == SchemaAuto
}

// Unconstrained reports whether the schema leaves the vocabulary open.
func (s Schema) Unconstrained() bool {
	return s.Mode == SchemaUnconstrained
}

// AllowedNodes returns the node vocabulary, or nil when unconstrained.
func (s Schema) AllowedNodes() []string {
	if s.Unconstrained() {
		return nil
	}
	return s.Elements
}

// AllowedRelationships returns the relationship vocabulary, or nil when
// unconstrained.
func (s Schema) AllowedRelationships() []string {
	if s.Unconstrained() {
		return nil
	}
	return s.Relationships
}

// OracleIdentity identifies the extraction backend. It is part of the cache
// key, so two backends that may answer differently must differ here.
type OracleIdentity struct {
	Local         bool   `json:"local"`
	Model         string `json:"model"`
	ContextWindow int    `json:"context_window"`
}

// OptimizeParams controls hub de-densification.
type OptimizeParams struct {
	MinHubDegree   int  `json:"min_hub_degree"`
	MaxGroupSize   int  `json:"max_group_size"`
	MaxIterations  int  `json:"max_iterations"`
	RemoveIsolated bool `json:"remove_isolated"`
	// Reconnect links nodes and components cut off from the main graph
	// back into it before isolated nodes are removed.
	Reconnect bool `json:"reconnect"`
}

// ExtractionConfig is the recipe for extracting one chapter. It doubles as the
// seed of the cache key; only the fields listed in the cache key derivation
// take part in it.
type ExtractionConfig struct {
	NovelID      string
	ChapterID    string
	Text         string
	Oracle       OracleIdentity
	ChunkSize    int
	ChunkOverlap int
	Schema       Schema
	UseCache     bool

	// Verbose and Optimize never influence the cache key.
	Verbose  bool
	Optimize *OptimizeParams
}

// CacheMetadata describes a cached graph. It is stored next to the payload
// under the same key.
type CacheMetadata struct {
	NovelID       string    `json:"novel_name"`
	ChapterID     string    `json:"chapter_name"`
	Model         string    `json:"model_name"`
	Local         bool      `json:"use_local"`
	ContextWindow int       `json:"num_ctx"`
	ChunkSize     int       `json:"chunk_size"`
	ChunkOverlap  int       `json:"chunk_overlap"`
	ContentSize   int       `json:"content_size"`
	SchemaName    string    `json:"schema_name"`
	CacheVersion  string    `json:"cache_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// CacheEntry is a cached graph together with its key and metadata.
type CacheEntry struct {
	Key      string        `json:"key"`
	Payload  GraphDocument `json:"payload"`
	Metadata CacheMetadata `json:"metadata"`
}
