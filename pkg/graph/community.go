package graph

import (
	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

const labelPropagationRounds = 20

// communityGroups clusters members by label propagation over the edges that
// run between members, then chunks every cluster to at most size members.
// Clusters are ordered by their earliest member and members keep their input
// order, so the result is deterministic.
func communityGroups(members []string, rels []common.Relationship, size int) [][]string {
	index := make(map[string]int, len(members))
	for i, m := range members {
		index[m] = i
	}

	adj := make([][]int, len(members))
	for _, r := range rels {
		a, okA := index[r.SourceID]
		b, okB := index[r.TargetID]
		if !okA || !okB || a == b {
			continue
		}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	labels := make([]int, len(members))
	for i := range labels {
		labels[i] = i
	}

	for range labelPropagationRounds {
		changed := false
		for i := range members {
			if len(adj[i]) == 0 {
				continue
			}
			counts := map[int]int{}
			for _, j := range adj[i] {
				counts[labels[j]]++
			}
			best, bestCount := labels[i], 0
			for label, c := range counts {
				if c > bestCount || (c == bestCount && label < best) {
					best, bestCount = label, c
				}
			}
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var order []int
	clusters := map[int][]string{}
	for i, m := range members {
		l := labels[i]
		if _, ok := clusters[l]; !ok {
			order = append(order, l)
		}
		clusters[l] = append(clusters[l], m)
	}

	var groups [][]string
	for _, l := range order {
		groups = append(groups, chunkStrings(clusters[l], size)...)
	}
	return groups
}
