package graph

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

func star(hub string, n int) common.GraphDocument {
	doc := common.GraphDocument{Nodes: []common.Node{node(hub, "Character")}}
	for i := range n {
		id := fmt.Sprintf("n%02d", i)
		doc.Nodes = append(doc.Nodes, node(id, "Character"))
		doc.Relationships = append(doc.Relationships, rel(hub, id, "knows"))
	}
	return doc
}

func TestHubOptimizer_Converges(t *testing.T) {
	doc := star("H", 50)
	doc.Relationships = append(doc.Relationships, rel("H", "H", "self"))

	o := NewHubOptimizer(GroupPositional)
	got := o.Optimize(context.Background(), doc, common.OptimizeParams{MinHubDegree: 20, MaxGroupSize: 5, MaxIterations: 5})

	if d := Degree(got, "H"); d > 10 {
		t.Errorf("hub degree = %d, want <= 10", d)
	}
	for _, r := range got.Relationships {
		if r.SourceID == r.TargetID {
			t.Fatalf("self-loop survived: %+v", r)
		}
	}
	for _, n := range got.Nodes {
		if strings.HasPrefix(n.ID, "n") && Degree(got, n.ID) != 1 {
			t.Errorf("member %s degree = %d, want 1", n.ID, Degree(got, n.ID))
		}
	}
}

func TestHubOptimizer_AggregateShape(t *testing.T) {
	got, stats := NewHubOptimizer(GroupPositional).OptimizeWithStats(
		context.Background(),
		star("H", 7),
		common.OptimizeParams{MinHubDegree: 5, MaxGroupSize: 3, MaxIterations: 1},
	)

	if stats.AggregatesCreated != 3 || stats.HubsProcessed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	agg := map[string]common.Node{}
	for _, n := range got.Nodes {
		if n.Type == AggregateNodeType {
			agg[n.ID] = n
		}
	}
	wantSizes := map[string]int{"H__agg_1_1": 3, "H__agg_1_2": 3, "H__agg_1_3": 1}
	for id, size := range wantSizes {
		n, ok := agg[id]
		if !ok {
			t.Fatalf("missing aggregate %s", id)
		}
		if n.Properties["member_count"] != size || n.Properties["origin_hub"] != "H" {
			t.Errorf("%s properties = %v", id, n.Properties)
		}
		if _, ok := n.Properties[SequenceProperty]; ok {
			t.Errorf("%s has a sequence number", id)
		}
	}

	links, members := 0, 0
	for _, r := range got.Relationships {
		switch r.Type {
		case AggregateLinkType:
			links++
			if r.SourceID != "H" {
				t.Errorf("aggregate link from %s", r.SourceID)
			}
		case ContainsMemberType:
			members++
		case "knows":
			t.Errorf("direct hub edge survived: %+v", r)
		}
	}
	if links != 3 || members != 7 {
		t.Errorf("links = %d, members = %d", links, members)
	}
}

func TestHubOptimizer_RemovesBothDirections(t *testing.T) {
	doc := star("H", 4)
	doc.Relationships = append(doc.Relationships, rel("n00", "H", "admires"))

	got := NewHubOptimizer(GroupPositional).Optimize(context.Background(), doc, common.OptimizeParams{MinHubDegree: 3, MaxGroupSize: 10, MaxIterations: 1})

	for _, r := range got.Relationships {
		if (r.SourceID == "H" && strings.HasPrefix(r.TargetID, "n")) || (r.TargetID == "H" && strings.HasPrefix(r.SourceID, "n")) {
			t.Fatalf("direct edge survived: %+v", r)
		}
	}
}

func TestHubOptimizer_MultiplePasses(t *testing.T) {
	got, stats := NewHubOptimizer(GroupPositional).OptimizeWithStats(
		context.Background(),
		star("H", 60),
		common.OptimizeParams{MinHubDegree: 5, MaxGroupSize: 3, MaxIterations: 5},
	)

	if stats.Passes < 2 {
		t.Fatalf("passes = %d, want at least 2", stats.Passes)
	}
	seen := map[string]bool{}
	for _, n := range got.Nodes {
		if seen[n.ID] {
			t.Fatalf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
	}
	if d := Degree(got, "H"); d >= 5 {
		t.Errorf("hub degree = %d, want < 5", d)
	}
}

func TestHubOptimizer_NoHubs(t *testing.T) {
	doc := star("H", 3)
	got, stats := NewHubOptimizer("").OptimizeWithStats(context.Background(), doc, common.OptimizeParams{})
	if stats.Passes != 1 || stats.HubsProcessed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(got.Relationships) != 3 || len(got.Nodes) != 4 {
		t.Fatalf("graph changed: %+v", got)
	}
}

func TestHubOptimizer_DoesNotModifyInput(t *testing.T) {
	doc := star("H", 12)
	NewHubOptimizer(GroupPositional).Optimize(context.Background(), doc, common.OptimizeParams{MinHubDegree: 5, MaxGroupSize: 4})
	if len(doc.Nodes) != 13 || len(doc.Relationships) != 12 {
		t.Fatalf("input modified: %d nodes, %d relationships", len(doc.Nodes), len(doc.Relationships))
	}
}

func TestHubOptimizer_RemoveIsolated(t *testing.T) {
	doc := star("H", 2)
	doc.Nodes = append(doc.Nodes, node("Lonely", "Character"))
	doc.Relationships = append(doc.Relationships, rel("Self", "Self", "loop"))
	doc.Nodes = append(doc.Nodes, node("Self", "Character"))

	got := NewHubOptimizer(GroupPositional).Optimize(context.Background(), doc, common.OptimizeParams{RemoveIsolated: true})
	for _, n := range got.Nodes {
		if n.ID == "Lonely" || n.ID == "Self" {
			t.Errorf("isolated node %s kept", n.ID)
		}
	}
	if len(got.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(got.Nodes))
	}
}

func TestHubOptimizer_Community(t *testing.T) {
	doc := star("H", 6)
	// two cliques among the neighbours: {n00, n02, n04} and {n01, n03, n05}
	for _, pair := range [][2]string{{"n00", "n02"}, {"n02", "n04"}, {"n00", "n04"}, {"n01", "n03"}, {"n03", "n05"}, {"n01", "n05"}} {
		doc.Relationships = append(doc.Relationships, rel(pair[0], pair[1], "knows"))
	}

	got := NewHubOptimizer(GroupCommunity).Optimize(context.Background(), doc, common.OptimizeParams{MinHubDegree: 6, MaxGroupSize: 10, MaxIterations: 1})

	members := map[string][]string{}
	for _, r := range got.Relationships {
		if r.Type == ContainsMemberType {
			members[r.SourceID] = append(members[r.SourceID], r.TargetID)
		}
	}
	want := map[string][]string{
		"H__agg_1_1": {"n00", "n02", "n04"},
		"H__agg_1_2": {"n01", "n03", "n05"},
	}
	for id, m := range want {
		if strings.Join(members[id], ",") != strings.Join(m, ",") {
			t.Errorf("%s members = %v, want %v", id, members[id], m)
		}
	}
}

func membersOf(doc common.GraphDocument, agg string) []string {
	var out []string
	for _, r := range doc.Relationships {
		if r.SourceID == agg {
			out = append(out, r.TargetID)
		}
	}
	return out
}

func nodeByID(doc common.GraphDocument, id string) (common.Node, bool) {
	for _, n := range doc.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return common.Node{}, false
}

func TestHubOptimizer_ModelGroups(t *testing.T) {
	client := &fakeAIClient{response: `{"groups": [
		{"group_name": "Family", "node_ids": ["n00", "n02", "n04", "ghost", "n00"], "link_type": "has", "member_type": "includes"},
		{"group_name": "Rivals", "node_ids": ["n01"], "link_type": "faces", "member_type": "opposes"}
	]}`}
	o := NewHubOptimizer(GroupLLM, WithOptimizerClient(client))

	got, stats := o.OptimizeWithStats(context.Background(), star("H", 6),
		common.OptimizeParams{MinHubDegree: 6, MaxGroupSize: 3, MaxIterations: 1})

	if stats.AggregatesCreated != 3 || stats.GroupingFallbacks != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(client.names) != 1 || client.names[0] != "group_hub_neighbours" {
		t.Fatalf("model calls = %v", client.names)
	}
	if !strings.Contains(client.prompts[0], "ID=n05") {
		t.Errorf("prompt lacks neighbours: %s", client.prompts[0])
	}

	tests := []struct {
		agg     string
		name    string
		link    string
		members []string
	}{
		{"H__agg_1_1", "Family", "has", []string{"n00", "n02", "n04"}},
		{"H__agg_1_2", "Rivals", "faces", []string{"n01"}},
		{"H__agg_1_3", "H group 3", AggregateLinkType, []string{"n03", "n05"}},
	}
	for _, tc := range tests {
		n, ok := nodeByID(got, tc.agg)
		if !ok {
			t.Fatalf("aggregate %s missing", tc.agg)
		}
		if n.Properties["name"] != tc.name || n.Type != AggregateNodeType {
			t.Errorf("%s = %+v, want name %q", tc.agg, n, tc.name)
		}
		if m := membersOf(got, tc.agg); !reflect.DeepEqual(m, tc.members) {
			t.Errorf("%s members = %v, want %v", tc.agg, m, tc.members)
		}
		found := false
		for _, r := range got.Relationships {
			if r.SourceID == "H" && r.TargetID == tc.agg {
				found = r.Type == tc.link
			}
		}
		if !found {
			t.Errorf("link H -> %s is not %q", tc.agg, tc.link)
		}
	}
	for _, r := range got.Relationships {
		if r.SourceID == "H__agg_1_1" && r.Type != "includes" {
			t.Errorf("member type = %q, want includes", r.Type)
		}
	}
	if d := Degree(got, "H"); d != 3 {
		t.Errorf("hub degree = %d, want 3", d)
	}
}

func TestHubOptimizer_ModelGroupsFallback(t *testing.T) {
	tests := []struct {
		name string
		opts []OptimizerOption
	}{
		{"model error", []OptimizerOption{WithOptimizerClient(&fakeAIClient{err: errFakeOracle})}},
		{"no model", nil},
		{"no usable groups", []OptimizerOption{WithOptimizerClient(&fakeAIClient{response: `{"groups":[{"group_name":"X","node_ids":["ghost"]}]}`})}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, stats := NewHubOptimizer(GroupLLM, tc.opts...).OptimizeWithStats(context.Background(), star("H", 6),
				common.OptimizeParams{MinHubDegree: 6, MaxGroupSize: 3, MaxIterations: 1})

			if stats.GroupingFallbacks != 1 || stats.AggregatesCreated != 2 {
				t.Fatalf("stats = %+v", stats)
			}
			want := []string{"n00", "n01", "n02"}
			if m := membersOf(got, "H__agg_1_1"); !reflect.DeepEqual(m, want) {
				t.Errorf("members = %v, want %v", m, want)
			}
		})
	}
}

// reconnectFixture is a star around H, a node without relationships and a
// separate pair X-Y.
func reconnectFixture() common.GraphDocument {
	doc := star("H", 3)
	doc.Nodes = append(doc.Nodes, node("Lonely", "Character"), node("X", "Location"), node("Y", "Location"))
	doc.Relationships = append(doc.Relationships, rel("X", "Y", "borders"))
	return doc
}

func TestHubOptimizer_Reconnect(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeAIClient
		want   []string
	}{
		{
			name: "most connected node",
			want: []string{"Lonely-related_to->H", "X-related_to->H"},
		},
		{
			name:   "model suggestions",
			client: &fakeAIClient{response: `{"suggestions":[{"target_node_id":"n01","relationship_type":"visits"},{"target_node_id":"nowhere","relationship_type":"x"}]}`},
			want:   []string{"Lonely-visits->n01", "X-visits->n01"},
		},
		{
			name:   "model failure",
			client: &fakeAIClient{err: errFakeOracle},
			want:   []string{"Lonely-related_to->H", "X-related_to->H"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var opts []OptimizerOption
			if tc.client != nil {
				opts = append(opts, WithOptimizerClient(tc.client))
			}
			got, stats := NewHubOptimizer(GroupPositional, opts...).OptimizeWithStats(context.Background(), reconnectFixture(),
				common.OptimizeParams{MinHubDegree: 100, Reconnect: true, RemoveIsolated: true})

			var added []string
			for _, r := range got.Relationships {
				if r.Properties["reconnected"] == true {
					added = append(added, r.SourceID+"-"+r.Type+"->"+r.TargetID)
				}
			}
			if !reflect.DeepEqual(added, tc.want) {
				t.Fatalf("reconnected = %v, want %v", added, tc.want)
			}
			if stats.Reconnected != 2 || stats.IsolatedRemoved != 0 || len(got.Nodes) != 7 {
				t.Errorf("stats = %+v, nodes = %d", stats, len(got.Nodes))
			}
			if comps := connectedComponents(got); len(comps) != 1 {
				t.Errorf("components = %v", comps)
			}
		})
	}
}

func TestHubOptimizer_ReconnectDisabled(t *testing.T) {
	got, stats := NewHubOptimizer(GroupPositional).OptimizeWithStats(context.Background(), reconnectFixture(),
		common.OptimizeParams{MinHubDegree: 100, RemoveIsolated: true})
	if stats.Reconnected != 0 || stats.IsolatedRemoved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := nodeByID(got, "Lonely"); ok {
		t.Error("isolated node kept")
	}
}
