package graph

import (
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// SequenceProperty is the node property holding the first-occurrence rank.
const SequenceProperty = "sequence_number"

// MergeStats counts what MergeGraphsWithStats did.
type MergeStats struct {
	Nodes               int
	Relationships       int
	DuplicateNodes      int
	PrunedRelationships int
}

// MergeGraphs folds partial graphs into one. See MergeGraphsWithStats.
func MergeGraphs(partials []common.GraphDocument) common.GraphDocument {
	doc, _ := MergeGraphsWithStats(partials)
	return doc
}

// MergeGraphsWithStats folds partial graphs in order. The first node with a
// given ID wins and later duplicates are dropped, while relationships from any
// partial still attach to the surviving node. Relationships are never
// de-duplicated. Relationships whose endpoints are missing after folding are
// pruned. Every surviving node gets a 1-based sequence_number in
// first-occurrence order.
//
// The partials are not modified.
func MergeGraphsWithStats(partials []common.GraphDocument) (common.GraphDocument, MergeStats) {
	var stats MergeStats
	seen := map[string]struct{}{}
	out := common.GraphDocument{
		Nodes:         []common.Node{},
		Relationships: []common.Relationship{},
	}

	var rels []common.Relationship
	for _, p := range partials {
		for _, n := range p.Nodes {
			if _, ok := seen[n.ID]; ok {
				stats.DuplicateNodes++
				continue
			}
			seen[n.ID] = struct{}{}

			props := make(map[string]any, len(n.Properties)+1)
			for k, v := range n.Properties {
				props[k] = v
			}
			props[SequenceProperty] = len(out.Nodes) + 1
			out.Nodes = append(out.Nodes, common.Node{ID: n.ID, Type: n.Type, Properties: props})
		}
		rels = append(rels, p.Relationships...)
	}

	for _, r := range rels {
		_, okS := seen[r.SourceID]
		_, okT := seen[r.TargetID]
		if !okS || !okT {
			stats.PrunedRelationships++
			logger.Debug("[Merge] pruning dangling relationship",
				"source", r.SourceID, "target", r.TargetID, "type", r.Type)
			continue
		}
		props := make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			props[k] = v
		}
		out.Relationships = append(out.Relationships, common.Relationship{
			SourceID:   r.SourceID,
			TargetID:   r.TargetID,
			Type:       r.Type,
			Properties: props,
		})
	}

	if stats.PrunedRelationships > 0 {
		logger.Warn("[Merge] pruned relationships with missing endpoints", "count", stats.PrunedRelationships)
	}
	stats.Nodes = len(out.Nodes)
	stats.Relationships = len(out.Relationships)
	return out, stats
}
