package graph

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

type oracleCall struct {
	text  string
	nodes []string
	rels  []string
}

// fakeOracle answers with one node per window named after the window's first
// word plus an edge to a shared "Narrator" node. Windows containing "FAIL"
// return an error.
type fakeOracle struct {
	mu       sync.Mutex
	calls    []oracleCall
	identity common.OracleIdentity
	onCall   func(n int)
}

var errFakeOracle = errors.New("oracle unavailable")

func (f *fakeOracle) Extract(_ context.Context, text string, nodes, rels []string) (common.GraphDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, oracleCall{text: text, nodes: nodes, rels: rels})
	n := len(f.calls)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}

	if strings.Contains(text, "FAIL") {
		return common.GraphDocument{}, errFakeOracle
	}
	first := strings.Fields(text)[0]
	relType := "mentions"
	if len(rels) > 0 {
		relType = rels[0]
	}
	return common.GraphDocument{
		Nodes: []common.Node{
			{ID: first, Type: "Character", Properties: map[string]any{"name": first}},
			{ID: "Narrator", Type: "Character", Properties: map[string]any{"name": "Narrator"}},
		},
		Relationships: []common.Relationship{
			{SourceID: "Narrator", TargetID: first, Type: relType, Properties: map[string]any{}},
		},
	}, nil
}

func (f *fakeOracle) Identity() common.OracleIdentity {
	if f.identity == (common.OracleIdentity{}) {
		return common.OracleIdentity{Local: true, Model: "fake", ContextWindow: 8192}
	}
	return f.identity
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// paragraphs builds a text of n paragraphs of the given width that the
// splitter turns into exactly n windows when chunkSize < 2*width.
func paragraphs(words ...string) string {
	ps := make([]string, len(words))
	for i, w := range words {
		ps[i] = w + " " + strings.Repeat("x", 55)
	}
	return strings.Join(ps, "\n\n")
}
