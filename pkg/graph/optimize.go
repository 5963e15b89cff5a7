package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// Aggregate node and edge types written by the optimizer.
const (
	AggregateNodeType  = "aggregate"
	AggregateLinkType  = "aggregate-link"
	ContainsMemberType = "contains-member"
)

// Optimizer defaults.
const (
	DefaultMinHubDegree  = 50
	DefaultMaxGroupSize  = 10
	DefaultMaxIterations = 3
)

// GroupingStrategy decides how a hub's neighbours are partitioned.
type GroupingStrategy string

const (
	// GroupPositional chunks neighbours in first-seen edge order.
	GroupPositional GroupingStrategy = "positional"
	// GroupCommunity clusters neighbours that are connected to each other
	// before chunking.
	GroupCommunity GroupingStrategy = "community"
	// GroupLLM asks a language model for named, themed groups. Hubs the model
	// cannot group fall back to positional grouping.
	GroupLLM GroupingStrategy = "llm"
)

// DefaultOptimizeParams returns the optimizer defaults.
func DefaultOptimizeParams() common.OptimizeParams {
	return common.OptimizeParams{
		MinHubDegree:  DefaultMinHubDegree,
		MaxGroupSize:  DefaultMaxGroupSize,
		MaxIterations: DefaultMaxIterations,
	}
}

// OptimizeStats counts what one Optimize run did.
type OptimizeStats struct {
	Passes            int
	HubsProcessed     int
	AggregatesCreated int
	SelfLoopsRemoved  int
	IsolatedRemoved   int
	Reconnected       int
	GroupingFallbacks int
	MaxDegreeBefore   int
	MaxDegreeAfter    int
}

// HubOptimizer reduces the degree of hub nodes by moving their neighbours
// behind aggregate nodes.
type HubOptimizer struct {
	strategy GroupingStrategy
	client   ai.GraphAIClient
}

// OptimizerOption configures a HubOptimizer.
type OptimizerOption func(*HubOptimizer)

// WithOptimizerClient sets the model used by GroupLLM and by reconnection.
func WithOptimizerClient(client ai.GraphAIClient) OptimizerOption {
	return func(o *HubOptimizer) {
		o.client = client
	}
}

// NewHubOptimizer returns an optimizer using strategy. An empty or unknown
// strategy falls back to GroupPositional.
func NewHubOptimizer(strategy GroupingStrategy, opts ...OptimizerOption) *HubOptimizer {
	switch strategy {
	case GroupPositional, GroupCommunity, GroupLLM:
	default:
		strategy = GroupPositional
	}
	o := &HubOptimizer{strategy: strategy}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strategy returns the grouping strategy in use.
func (o *HubOptimizer) Strategy() GroupingStrategy {
	return o.strategy
}

// Optimize returns a reshaped copy of doc. See OptimizeWithStats.
func (o *HubOptimizer) Optimize(ctx context.Context, doc common.GraphDocument, params common.OptimizeParams) common.GraphDocument {
	out, _ := o.OptimizeWithStats(ctx, doc, params)
	return out
}

// OptimizeWithStats runs up to MaxIterations passes. Each pass selects every
// node whose degree is at least MinHubDegree, most connected first, and
// replaces its direct edges to neighbours by edges to aggregate nodes holding
// at most MaxGroupSize members each. It stops early after a pass that changed
// nothing. Afterwards it reconnects stranded nodes if requested, removes all
// self-loops and, if requested, isolated nodes.
//
// ctx only bounds model calls; a cancelled ctx makes GroupLLM fall back to
// positional grouping and skips model-suggested reconnections.
//
// doc is not modified. Zero parameters take the defaults.
func (o *HubOptimizer) OptimizeWithStats(
	ctx context.Context,
	doc common.GraphDocument,
	params common.OptimizeParams,
) (common.GraphDocument, OptimizeStats) {
	params = withDefaults(params)
	g := doc.Clone()
	stats := OptimizeStats{MaxDegreeBefore: maxDegree(g)}

	for pass := 1; pass <= params.MaxIterations; pass++ {
		stats.Passes = pass
		processed, created, fallbacks := o.pass(ctx, &g, pass, params)
		stats.HubsProcessed += processed
		stats.AggregatesCreated += created
		stats.GroupingFallbacks += fallbacks
		logger.Debug("[Optimize] pass finished", "pass", pass, "hubs", processed, "aggregates", created)
		if processed == 0 {
			break
		}
	}

	if params.Reconnect {
		stats.Reconnected = o.reconnect(ctx, &g)
	}
	g.Relationships, stats.SelfLoopsRemoved = removeSelfLoops(g.Relationships)
	if params.RemoveIsolated {
		g.Nodes, stats.IsolatedRemoved = removeIsolated(g)
	}
	stats.MaxDegreeAfter = maxDegree(g)

	logger.Info("[Optimize] done",
		"passes", stats.Passes,
		"hubs", stats.HubsProcessed,
		"aggregates", stats.AggregatesCreated,
		"reconnected", stats.Reconnected,
		"max_degree_before", stats.MaxDegreeBefore,
		"max_degree_after", stats.MaxDegreeAfter,
	)
	return g, stats
}

func withDefaults(p common.OptimizeParams) common.OptimizeParams {
	if p.MinHubDegree <= 0 {
		p.MinHubDegree = DefaultMinHubDegree
	}
	if p.MaxGroupSize <= 0 {
		p.MaxGroupSize = DefaultMaxGroupSize
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	return p
}

// pass processes every hub once and reports how many hubs were grouped, how
// many aggregates were created and how many hubs fell back to positional
// grouping.
func (o *HubOptimizer) pass(ctx context.Context, g *common.GraphDocument, pass int, params common.OptimizeParams) (int, int, int) {
	degrees := degreeMap(g.Relationships)

	type hub struct {
		id     string
		degree int
	}
	var hubs []hub
	for _, n := range g.Nodes {
		if d := degrees[n.ID]; d >= params.MinHubDegree {
			hubs = append(hubs, hub{id: n.ID, degree: d})
		}
	}
	slices.SortStableFunc(hubs, func(a, b hub) int { return b.degree - a.degree })

	names := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.ID] = nodeName(n)
	}

	createdThisPass := map[string]struct{}{}
	processed, created, fallbacks := 0, 0, 0
	for _, h := range hubs {
		neighbours := neighboursOf(h.id, g.Relationships, createdThisPass)
		if len(neighbours) == 0 {
			continue
		}

		var groups []neighbourGroup
		switch o.strategy {
		case GroupCommunity:
			groups = plainGroups(communityGroups(neighbours, g.Relationships, params.MaxGroupSize))
		case GroupLLM:
			var err error
			groups, err = o.llmGroups(ctx, *g, h.id, neighbours, params.MaxGroupSize)
			if err != nil {
				logger.Warn("[Optimize] model grouping failed, using positional groups", "hub", h.id, "err", err)
				groups = plainGroups(positionalGroups(neighbours, params.MaxGroupSize))
				fallbacks++
			}
		default:
			groups = plainGroups(positionalGroups(neighbours, params.MaxGroupSize))
		}

		grouped := make(map[string]struct{}, len(neighbours))
		for gi, group := range groups {
			aggID := fmt.Sprintf("%s__agg_%d_%d", h.id, pass, gi+1)
			createdThisPass[aggID] = struct{}{}
			name := group.name
			if name == "" {
				name = fmt.Sprintf("%s group %d", names[h.id], gi+1)
			}
			g.Nodes = append(g.Nodes, common.Node{
				ID:   aggID,
				Type: AggregateNodeType,
				Properties: map[string]any{
					"name":         name,
					"origin_hub":   h.id,
					"group_index":  gi + 1,
					"member_count": len(group.members),
				},
			})
			g.Relationships = append(g.Relationships, common.Relationship{
				SourceID:   h.id,
				TargetID:   aggID,
				Type:       orDefault(group.linkType, AggregateLinkType),
				Properties: map[string]any{},
			})
			for _, m := range group.members {
				grouped[m] = struct{}{}
				g.Relationships = append(g.Relationships, common.Relationship{
					SourceID:   aggID,
					TargetID:   m,
					Type:       orDefault(group.memberType, ContainsMemberType),
					Properties: map[string]any{},
				})
			}
			created++
		}

		g.Relationships = slices.DeleteFunc(g.Relationships, func(r common.Relationship) bool {
			if r.SourceID == h.id {
				_, ok := grouped[r.TargetID]
				return ok
			}
			if r.TargetID == h.id {
				_, ok := grouped[r.SourceID]
				return ok
			}
			return false
		})
		processed++
	}
	return processed, created, fallbacks
}

// neighbourGroup is one aggregate to be created. Empty names and types take
// the generated defaults.
type neighbourGroup struct {
	name       string
	members    []string
	linkType   string
	memberType string
}

func plainGroups(groups [][]string) []neighbourGroup {
	out := make([]neighbourGroup, len(groups))
	for i, members := range groups {
		out[i] = neighbourGroup{members: members}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nodeName(n common.Node) string {
	if name, ok := n.Properties["name"].(string); ok && name != "" {
		return name
	}
	return n.ID
}

// neighboursOf returns the distinct nodes connected to id, in first-seen edge
// order, skipping self-loops and the given exclusions.
func neighboursOf(id string, rels []common.Relationship, exclude map[string]struct{}) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rels {
		var other string
		switch {
		case r.SourceID == id && r.TargetID != id:
			other = r.TargetID
		case r.TargetID == id && r.SourceID != id:
			other = r.SourceID
		default:
			continue
		}
		if _, ok := exclude[other]; ok {
			continue
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out
}

func positionalGroups(members []string, size int) [][]string {
	return chunkStrings(members, size)
}

// degreeMap counts, per node, the relationships it is an endpoint of. A
// self-loop counts once per side.
func degreeMap(rels []common.Relationship) map[string]int {
	d := make(map[string]int)
	for _, r := range rels {
		d[r.SourceID]++
		d[r.TargetID]++
	}
	return d
}

// Degree returns the degree of id in doc.
func Degree(doc common.GraphDocument, id string) int {
	return degreeMap(doc.Relationships)[id]
}

func maxDegree(g common.GraphDocument) int {
	m := 0
	for _, d := range degreeMap(g.Relationships) {
		m = max(m, d)
	}
	return m
}

func removeSelfLoops(rels []common.Relationship) ([]common.Relationship, int) {
	before := len(rels)
	rels = slices.DeleteFunc(rels, func(r common.Relationship) bool {
		return r.SourceID == r.TargetID
	})
	return rels, before - len(rels)
}

func removeIsolated(g common.GraphDocument) ([]common.Node, int) {
	degrees := degreeMap(g.Relationships)
	before := len(g.Nodes)
	nodes := slices.DeleteFunc(g.Nodes, func(n common.Node) bool {
		return degrees[n.ID] == 0
	})
	return nodes, before - len(nodes)
}
