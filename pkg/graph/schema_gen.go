package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// maxSchemaSample bounds the text sent for schema generation.
const maxSchemaSample = 12000

type generatedSchema struct {
	Name          string   `json:"name" jsonschema_description:"Short name of the schema"`
	Description   string   `json:"description" jsonschema_description:"One sentence describing the schema"`
	Elements      []string `json:"elements" jsonschema_description:"Node types"`
	Relationships []string `json:"relationships" jsonschema_description:"Relationship types"`
}

// SchemaGenerator derives a schema from the text of a chapter. Results are
// cached in the artifact store under "schema_<hash>.json".
type SchemaGenerator struct {
	client ai.GraphAIClient
	store  cache.Store
	base   common.Schema
}

// NewSchemaGenerator returns a generator. store may be nil to disable caching.
func NewSchemaGenerator(client ai.GraphAIClient, store cache.Store) *SchemaGenerator {
	return &SchemaGenerator{client: client, store: store, base: MinimalSchema()}
}

// SchemaArtifactName returns the store name of a generated schema.
func SchemaArtifactName(text string, identity common.OracleIdentity) string {
	where := "remote"
	if identity.Local {
		where = "local"
	}
	sum := sha256.Sum256([]byte(text + "_" + identity.Model + "_" + where))
	return "schema_" + hex.EncodeToString(sum[:]) + ".json"
}

// Generate returns a schema for text. It never fails: any error falls back to
// the minimal schema.
func (g *SchemaGenerator) Generate(ctx context.Context, text string, identity common.OracleIdentity) common.Schema {
	s, err := g.generate(ctx, text, identity)
	if err != nil {
		logger.Warn("[Schema] generation failed, using minimal schema", "err", err)
		return g.base
	}
	return s
}

func (g *SchemaGenerator) generate(ctx context.Context, text string, identity common.OracleIdentity) (common.Schema, error) {
	name := SchemaArtifactName(text, identity)
	if g.store != nil {
		data, err := g.store.Read(ctx, name)
		switch {
		case err == nil:
			var s common.Schema
			if jsonErr := json.Unmarshal(data, &s); jsonErr == nil && len(s.Elements) > 0 {
				logger.Debug("[Schema] cache hit", "artifact", name)
				return s, nil
			}
			logger.Warn("[Schema] ignoring unreadable cached schema", "artifact", name)
		case !errors.Is(err, cache.ErrNotFound):
			logger.Warn("[Schema] cache read failed", "artifact", name, "err", err)
		}
	}

	if g.client == nil {
		return common.Schema{}, errors.New("no AI client configured")
	}

	sample := text
	if r := []rune(text); len(r) > maxSchemaSample {
		sample = string(r[:maxSchemaSample])
	}
	prompt := fmt.Sprintf(
		ai.GenerateSchemaPrompt,
		strings.Join(g.base.Elements, ", "),
		strings.Join(g.base.Relationships, ", "),
		sample,
	)

	var res generatedSchema
	err := g.client.GenerateCompletionWithFormat(
		ctx,
		"generate_graph_schema",
		"Generate the node and relationship vocabulary of a narrative knowledge graph.",
		prompt,
		&res,
		ai.WithTemperature(0),
	)
	if err != nil {
		return common.Schema{}, err
	}

	s := g.finish(res)
	logger.Info("[Schema] generated",
		"name", s.Name,
		"elements", strings.Join(s.Elements, ", "),
		"relationships", strings.Join(s.Relationships, ", "),
	)

	if g.store != nil {
		data, err := json.MarshalIndent(s, "", "  ")
		if err == nil {
			err = g.store.Write(ctx, name, data)
		}
		if err != nil {
			logger.Warn("[Schema] cache write failed", "artifact", name, "err", err)
		}
	}
	return s, nil
}

// finish keeps every base type, drops blanks and duplicates, and fills in a
// name and description when the model left them empty.
func (g *SchemaGenerator) finish(res generatedSchema) common.Schema {
	name := strings.TrimSpace(res.Name)
	if name == "" {
		name = SchemaAuto
	}
	desc := strings.TrimSpace(res.Description)
	if desc == "" {
		desc = "Generated schema"
	}
	return common.NewSchema(
		name,
		desc,
		mergeVocabulary(g.base.Elements, res.Elements),
		mergeVocabulary(g.base.Relationships, res.Relationships),
	)
}

func mergeVocabulary(base, extra []string) []string {
	out := slices.Clone(base)
	seen := map[string]struct{}{}
	for _, t := range base {
		seen[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range extra {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(t)]; ok {
			continue
		}
		seen[strings.ToLower(t)] = struct{}{}
		out = append(out, t)
	}
	return out
}
