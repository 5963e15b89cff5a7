package graph

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/storygraph/pkg/common"

	"gopkg.in/yaml.v3"
)

// Built-in schema names.
const (
	SchemaMinimal       = "minimal"
	SchemaBasic         = "basic"
	SchemaPlot          = "plot"
	SchemaUnconstrained = "unconstrained"
	SchemaAuto          = "auto"
)

var (
	MinimalElements      = []string{"Character", "Location", "Event"}
	MinimalRelationships = []string{"knows", "located_in", "participates_in"}

	BasicElements = []string{
		"Character", "Location", "Event", "Object", "Organization", "Time",
	}
	BasicRelationships = []string{
		"knows", "related_to", "located_in", "participates_in", "owns",
		"member_of", "occurs_at", "travels_to",
	}

	PlotElements = []string{
		"Character", "Location", "Event", "Conflict", "Goal", "Secret", "Object",
	}
	PlotRelationships = []string{
		"participates_in", "causes", "leads_to", "opposes", "allies_with",
		"pursues", "hides", "reveals", "located_in", "resolves", "motivates",
		"betrays", "protects",
	}
)

// MinimalSchema is the smallest built-in vocabulary and the fallback whenever
// schema generation fails.
func MinimalSchema() common.Schema {
	return common.NewSchema(SchemaMinimal, "Characters, places and events", MinimalElements, MinimalRelationships)
}

// SchemaCatalog resolves schema names. It starts with the built-ins and may be
// extended from a YAML file.
type SchemaCatalog struct {
	mu      sync.RWMutex
	order   []string
	schemas map[string]common.Schema
}

// NewSchemaCatalog returns a catalog containing the built-in schemas.
func NewSchemaCatalog() *SchemaCatalog {
	c := &SchemaCatalog{schemas: map[string]common.Schema{}}
	for _, s := range []common.Schema{
		MinimalSchema(),
		common.NewSchema(SchemaBasic, "Common narrative entities and their everyday relations", BasicElements, BasicRelationships),
		common.NewSchema(SchemaPlot, "Plot structure: conflicts, goals, causes and turns", PlotElements, PlotRelationships),
		common.UnconstrainedSchema(SchemaUnconstrained, "Any node and relationship type"),
		common.AutoSchema(SchemaAuto, "Vocabulary generated from the text"),
	} {
		c.add(s)
	}
	return c
}

type schemaFile struct {
	Schemas []common.Schema `yaml:"schemas"`
}

// LoadSchemaCatalog returns the built-in catalog extended by the schemas in the
// YAML file at path. An empty path yields the built-ins only. A file schema
// with a built-in name replaces the built-in.
//
//	schemas:
//	  - name: romance
//	    description: Relationships between lovers and rivals
//	    elements: [Character, Location]
//	    relationships: [loves, rivals, marries]
func LoadSchemaCatalog(path string) (*SchemaCatalog, error) {
	c := NewSchemaCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	for _, s := range f.Schemas {
		if err := c.Add(s); err != nil {
			return nil, fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return c, nil
}

// Add registers a schema. Schemas without a mode are constrained.
func (c *SchemaCatalog) Add(s common.Schema) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return &ConfigurationError{Field: "schema.name", Reason: "must not be empty"}
	}
	if s.Mode == "" {
		s.Mode = common.SchemaConstrained
	}
	switch s.Mode {
	case common.SchemaConstrained:
		if len(s.Elements) == 0 {
			return &ConfigurationError{Field: "schema." + s.Name, Reason: "constrained schema needs at least one element"}
		}
	case common.SchemaUnconstrained, common.SchemaAuto:
	default:
		return &ConfigurationError{Field: "schema." + s.Name, Reason: fmt.Sprintf("unknown mode %q", s.Mode)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(s)
	return nil
}

func (c *SchemaCatalog) add(s common.Schema) {
	if _, ok := c.schemas[s.Name]; !ok {
		c.order = append(c.order, s.Name)
	}
	c.schemas[s.Name] = s
}

// Get looks a schema up by name.
func (c *SchemaCatalog) Get(name string) (common.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	if !ok {
		return common.Schema{}, false
	}
	s.Elements = slices.Clone(s.Elements)
	s.Relationships = slices.Clone(s.Relationships)
	return s, true
}

// Resolve is Get with a ConfigurationError for unknown names.
func (c *SchemaCatalog) Resolve(name string) (common.Schema, error) {
	s, ok := c.Get(name)
	if !ok {
		return common.Schema{}, &ConfigurationError{Field: "schema", Reason: fmt.Sprintf("unknown schema %q", name)}
	}
	return s, nil
}

// List returns all schemas in registration order.
func (c *SchemaCatalog) List() []common.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.Schema, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.schemas[name])
	}
	return out
}
