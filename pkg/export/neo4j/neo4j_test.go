package neo4j

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

func TestRows(t *testing.T) {
	doc := common.GraphDocument{
		Nodes: []common.Node{
			{ID: "Ahab", Type: "Character", Properties: map[string]any{
				"name":            "Ahab",
				"sequence_number": 1,
				"aliases":         []any{"Captain"},
				"missing":         nil,
			}},
		},
		Relationships: []common.Relationship{
			{SourceID: "Ahab", TargetID: "Pequod", Type: "commands", Properties: map[string]any{"since": "day one"}},
		},
	}

	nodes := nodeRows(doc)
	want := []map[string]any{{
		"id":   "Ahab",
		"type": "Character",
		"props": map[string]any{
			"name":            "Ahab",
			"sequence_number": 1,
			"aliases":         `["Captain"]`,
		},
	}}
	if !reflect.DeepEqual(nodes, want) {
		t.Fatalf("nodes = %v", nodes)
	}

	rels := relationshipRows(doc)
	if len(rels) != 1 || rels[0]["type"] != "commands" || rels[0]["source"] != "Ahab" {
		t.Fatalf("relationships = %v", rels)
	}
}
