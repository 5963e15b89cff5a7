package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// DefaultSplitThreshold is the largest relationship vocabulary sent to the
// oracle in a single call.
const DefaultSplitThreshold = 5

// PlanSchema splits a schema with many relationship types into sub-schemas of
// at most threshold relationship types each. Every sub-schema keeps the full
// node vocabulary, and relationship order is preserved across the groups.
//
// Schemas at or below the threshold, schemas without relationships and
// unconstrained schemas are returned unchanged as a single element.
func PlanSchema(schema common.Schema, threshold int) []common.Schema {
	if threshold <= 0 {
		threshold = DefaultSplitThreshold
	}
	if schema.Mode != common.SchemaConstrained || len(schema.Relationships) <= threshold {
		return []common.Schema{schema}
	}

	n := (len(schema.Relationships) + threshold - 1) / threshold
	logger.Debug("[Planner] splitting schema",
		"schema", schema.Name,
		"relationships", len(schema.Relationships),
		"threshold", threshold,
		"groups", n,
	)

	out := make([]common.Schema, 0, n)
	for i, rels := range chunkStrings(schema.Relationships, threshold) {
		out = append(out, common.Schema{
			Name:          fmt.Sprintf("%s_group_%d", schema.Name, i+1),
			Description:   fmt.Sprintf("%s - group %d/%d: %s", schema.Description, i+1, n, strings.Join(rels, ", ")),
			Mode:          common.SchemaConstrained,
			Elements:      slices.Clone(schema.Elements),
			Relationships: rels,
		})
	}
	return out
}

func chunkStrings(s []string, size int) [][]string {
	out := make([][]string, 0, (len(s)+size-1)/size)
	for c := range slices.Chunk(s, size) {
		out = append(out, slices.Clone(c))
	}
	return out
}
