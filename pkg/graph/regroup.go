package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// RelatedToType links a reconnected node when no model suggests a type.
const RelatedToType = "related_to"

// maxReconnectCandidates bounds the candidate list shown for one stranded
// node.
const maxReconnectCandidates = 30

var errNoOptimizerClient = errors.New("no model configured for the optimizer")

type groupingAnswer struct {
	Groups []struct {
		GroupName  string   `json:"group_name" jsonschema_description:"Short name summing up the group"`
		NodeIDs    []string `json:"node_ids" jsonschema_description:"Ids of the neighbours in this group"`
		LinkType   string   `json:"link_type" jsonschema_description:"Relationship from the hub to the group"`
		MemberType string   `json:"member_type" jsonschema_description:"Relationship from the group to its members"`
	} `json:"groups" jsonschema_description:"Themed groups of neighbours"`
}

type reconnectAnswer struct {
	Suggestions []struct {
		TargetNodeID     string `json:"target_node_id" jsonschema_description:"Id of a candidate node"`
		RelationshipType string `json:"relationship_type" jsonschema_description:"Relationship from the node to the candidate"`
	} `json:"suggestions" jsonschema_description:"New relationships for the disconnected node"`
}

// llmGroups asks the model to group the neighbours of hub. Ids the model
// invents or repeats are ignored, groups larger than size are split, and
// neighbours the model left out are grouped positionally after the named
// groups.
func (o *HubOptimizer) llmGroups(
	ctx context.Context,
	g common.GraphDocument,
	hub string,
	neighbours []string,
	size int,
) ([]neighbourGroup, error) {
	if o.client == nil {
		return nil, errNoOptimizerClient
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := nodeIndex(g)
	var lines strings.Builder
	for i, id := range neighbours {
		n := byID[id]
		fmt.Fprintf(&lines, "%d. ID=%s, type=%s, properties=%s\n", i+1, id, n.Type, propertiesJSON(n.Properties))
	}
	h := byID[hub]
	prompt := fmt.Sprintf(ai.GroupNeighboursPrompt, hub, h.Type, propertiesJSON(h.Properties), lines.String(), size)

	var res groupingAnswer
	err := o.client.GenerateCompletionWithFormat(
		ctx,
		"group_hub_neighbours",
		"Group the neighbours of an overly connected node by theme.",
		prompt,
		&res,
		ai.WithTemperature(0),
	)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]struct{}, len(neighbours))
	for _, id := range neighbours {
		pending[id] = struct{}{}
	}
	var groups []neighbourGroup
	for _, answer := range res.Groups {
		var members []string
		for _, id := range answer.NodeIDs {
			id = strings.TrimSpace(id)
			if _, ok := pending[id]; !ok {
				continue
			}
			delete(pending, id)
			members = append(members, id)
		}
		name := strings.TrimSpace(answer.GroupName)
		for i, chunk := range chunkStrings(members, size) {
			chunkName := name
			if chunkName != "" && i > 0 {
				chunkName = fmt.Sprintf("%s %d", name, i+1)
			}
			groups = append(groups, neighbourGroup{
				name:       chunkName,
				members:    chunk,
				linkType:   strings.TrimSpace(answer.LinkType),
				memberType: strings.TrimSpace(answer.MemberType),
			})
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("model returned no usable groups for %q", hub)
	}

	var rest []string
	for _, id := range neighbours {
		if _, ok := pending[id]; ok {
			rest = append(rest, id)
		}
	}
	groups = append(groups, plainGroups(positionalGroups(rest, size))...)
	return groups, nil
}

// reconnect links stranded parts of g back to its largest component and
// returns how many relationships it added. Nodes without relationships are
// handled first, then every remaining smaller component through its best
// connected node. Targets come from the model when one is configured; without
// a model, or when it suggests nothing usable, the most connected candidate is
// linked with RelatedToType.
func (o *HubOptimizer) reconnect(ctx context.Context, g *common.GraphDocument) int {
	added := 0

	degrees := degreeMap(g.Relationships)
	var orphans []string
	for _, n := range g.Nodes {
		if degrees[n.ID] == 0 {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) == len(g.Nodes) {
		return 0
	}
	for _, id := range orphans {
		connected := degreeMap(g.Relationships)
		candidates := reconnectCandidates(*g, func(c string) bool { return c != id && connected[c] > 0 })
		added += o.link(ctx, g, id, candidates)
	}

	components := connectedComponents(*g)
	if len(components) <= 1 {
		return added
	}
	largest := components[0]
	inMain := make(map[string]struct{}, len(largest))
	for _, id := range largest {
		inMain[id] = struct{}{}
	}
	for _, comp := range components[1:] {
		degrees := degreeMap(g.Relationships)
		rep := comp[0]
		for _, id := range comp[1:] {
			if degrees[id] > degrees[rep] {
				rep = id
			}
		}
		candidates := reconnectCandidates(*g, func(c string) bool {
			_, ok := inMain[c]
			return ok
		})
		added += o.link(ctx, g, rep, candidates)
	}
	return added
}

// link adds the relationships for one stranded node and returns how many.
func (o *HubOptimizer) link(ctx context.Context, g *common.GraphDocument, id string, candidates []string) int {
	if len(candidates) == 0 {
		return 0
	}
	suggestions, err := o.suggestLinks(ctx, *g, id, candidates)
	if err != nil && !errors.Is(err, errNoOptimizerClient) {
		logger.Warn("[Optimize] model reconnection failed, linking to most connected node", "node", id, "err", err)
	}
	if len(suggestions) == 0 {
		suggestions = []common.Relationship{{SourceID: id, TargetID: candidates[0], Type: RelatedToType}}
	}
	for _, r := range suggestions {
		r.Properties = map[string]any{"reconnected": true}
		g.Relationships = append(g.Relationships, r)
	}
	logger.Debug("[Optimize] reconnected node", "node", id, "relationships", len(suggestions))
	return len(suggestions)
}

func (o *HubOptimizer) suggestLinks(
	ctx context.Context,
	g common.GraphDocument,
	id string,
	candidates []string,
) ([]common.Relationship, error) {
	if o.client == nil {
		return nil, errNoOptimizerClient
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := nodeIndex(g)
	degrees := degreeMap(g.Relationships)
	var lines strings.Builder
	for _, c := range candidates {
		n := byID[c]
		fmt.Fprintf(&lines, "- ID=%s, type=%s, properties=%s, relationships=%d\n", c, n.Type, propertiesJSON(n.Properties), degrees[c])
	}
	n := byID[id]
	prompt := fmt.Sprintf(ai.ReconnectNodePrompt, id, n.Type, propertiesJSON(n.Properties), lines.String())

	var res reconnectAnswer
	err := o.client.GenerateCompletionWithFormat(
		ctx,
		"reconnect_graph_node",
		"Suggest relationships that link a disconnected node back into the graph.",
		prompt,
		&res,
		ai.WithTemperature(0),
	)
	if err != nil {
		return nil, err
	}

	var out []common.Relationship
	seen := map[string]struct{}{}
	for _, s := range res.Suggestions {
		target := strings.TrimSpace(s.TargetNodeID)
		if !slices.Contains(candidates, target) {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, common.Relationship{
			SourceID: id,
			TargetID: target,
			Type:     orDefault(strings.TrimSpace(s.RelationshipType), RelatedToType),
		})
		if len(out) == 3 {
			break
		}
	}
	return out, nil
}

// reconnectCandidates returns the ids accepted by keep, most connected first,
// ties in node order.
func reconnectCandidates(g common.GraphDocument, keep func(string) bool) []string {
	degrees := degreeMap(g.Relationships)
	var out []string
	for _, n := range g.Nodes {
		if keep(n.ID) {
			out = append(out, n.ID)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return degrees[b] - degrees[a] })
	if len(out) > maxReconnectCandidates {
		out = out[:maxReconnectCandidates]
	}
	return out
}

// connectedComponents returns the components of g, largest first. Members and
// equally sized components keep node order.
func connectedComponents(g common.GraphDocument) [][]string {
	adj := make(map[string][]string)
	for _, r := range g.Relationships {
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
		adj[r.TargetID] = append(adj[r.TargetID], r.SourceID)
	}
	order := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		order[n.ID] = i
	}

	visited := map[string]struct{}{}
	var comps [][]string
	for _, n := range g.Nodes {
		if _, ok := visited[n.ID]; ok {
			continue
		}
		visited[n.ID] = struct{}{}
		comp := []string{n.ID}
		for i := 0; i < len(comp); i++ {
			for _, next := range adj[comp[i]] {
				if _, ok := order[next]; !ok {
					continue
				}
				if _, ok := visited[next]; ok {
					continue
				}
				visited[next] = struct{}{}
				comp = append(comp, next)
			}
		}
		slices.SortFunc(comp, func(a, b string) int { return order[a] - order[b] })
		comps = append(comps, comp)
	}
	slices.SortStableFunc(comps, func(a, b []string) int { return len(b) - len(a) })
	return comps
}

func nodeIndex(g common.GraphDocument) map[string]common.Node {
	m := make(map[string]common.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, ok := m[n.ID]; !ok {
			m[n.ID] = n
		}
	}
	return m
}

func propertiesJSON(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(data)
}
