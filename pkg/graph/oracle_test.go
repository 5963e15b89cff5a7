package graph

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

// fakeAIClient answers every structured request with a canned JSON body.
type fakeAIClient struct {
	response string
	err      error
	prompts  []string
	names    []string
}

func (f *fakeAIClient) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return f.response, f.err
}

func (f *fakeAIClient) GenerateCompletionWithFormat(_ context.Context, name, _ string, prompt string, out any, _ ...ai.GenerateOption) error {
	f.names = append(f.names, name)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func (f *fakeAIClient) Model() string { return "fake-model" }
func (f *fakeAIClient) Local() bool { return true }
func (f *fakeAIClient) ResetMetrics() {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

const normalizationResponse = `{
	"nodes": [
		{"id": "", "type": "character", "properties": [{"key": "name", "value": "Darcy"}]},
		{"id": "Pemberley", "type": "Estate", "properties": []},
		{"id": "", "type": "Character", "properties": []},
		{"id": "Elizabeth", "type": "Character", "properties": []},
		{"id": "Sword", "type": "", "properties": []}
	],
	"relationships": [
		{"source": "Darcy", "target": "Pemberley", "type": "OWNS", "properties": [{"key": "since", "value": "childhood"}]},
		{"source": "Darcy", "target": "Elizabeth", "type": "LOVES", "properties": []},
		{"source": "", "target": "Pemberley", "type": "located_in", "properties": []}
	]
}`

func TestLLMOracle_Normalization(t *testing.T) {
	client := &fakeAIClient{response: normalizationResponse}
	oracle, err := NewLLMOracle(NewLLMOracleParams{Client: client, ContextWindow: 4096})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := oracle.Extract(context.Background(), "passage", []string{"Character", "Location"}, []string{"loves", "located_in"})
	if err != nil {
		t.Fatal(err)
	}

	var nodes []string
	for _, n := range doc.Nodes {
		nodes = append(nodes, n.ID+":"+n.Type)
	}
	want := []string{"Darcy:Character", "Pemberley:Estate", "Elizabeth:Character"}
	if !reflect.DeepEqual(nodes, want) {
		t.Fatalf("nodes = %v, want %v", nodes, want)
	}
	if doc.Nodes[1].Properties["name"] != "Pemberley" {
		t.Errorf("name not defaulted to id: %+v", doc.Nodes[1])
	}

	var rels []string
	for _, r := range doc.Relationships {
		rels = append(rels, r.SourceID+"-"+r.Type+"->"+r.TargetID)
	}
	wantRels := []string{"Darcy-OWNS->Pemberley", "Darcy-loves->Elizabeth"}
	if !reflect.DeepEqual(rels, wantRels) {
		t.Fatalf("relationships = %v, want %v", rels, wantRels)
	}
	if doc.Relationships[0].Properties["since"] != "childhood" {
		t.Errorf("relationship properties = %v", doc.Relationships[0].Properties)
	}

	merged := MergeGraphs([]common.GraphDocument{doc})
	if len(merged.Relationships) != 2 {
		t.Errorf("merge lost relationships: %+v", merged.Relationships)
	}

	if !strings.Contains(client.prompts[0], "Character, Location") || !strings.Contains(client.prompts[0], "passage") {
		t.Errorf("prompt lacks vocabulary or text: %s", client.prompts[0])
	}
	id := oracle.Identity()
	if id != (common.OracleIdentity{Local: true, Model: "fake-model", ContextWindow: 4096}) {
		t.Errorf("identity = %+v", id)
	}
}

func TestLLMOracle_Strict(t *testing.T) {
	client := &fakeAIClient{response: normalizationResponse}
	oracle, err := NewLLMOracle(NewLLMOracleParams{Client: client, Strict: true})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := oracle.Extract(context.Background(), "passage", []string{"Character", "Location"}, []string{"loves", "located_in"})
	if err != nil {
		t.Fatal(err)
	}
	var nodes []string
	for _, n := range doc.Nodes {
		nodes = append(nodes, n.ID)
	}
	if !reflect.DeepEqual(nodes, []string{"Darcy", "Elizabeth"}) {
		t.Fatalf("nodes = %v", nodes)
	}
	if len(doc.Relationships) != 1 || doc.Relationships[0].Type != "loves" {
		t.Fatalf("relationships = %+v", doc.Relationships)
	}
}

func TestLLMOracle_Unconstrained(t *testing.T) {
	client := &fakeAIClient{response: `{"nodes":[{"id":"Ahab","type":"Captain","properties":[]}],"relationships":[]}`}
	oracle, _ := NewLLMOracle(NewLLMOracleParams{Client: client})

	doc, err := oracle.Extract(context.Background(), "text", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 1 || doc.Nodes[0].Type != "Captain" {
		t.Fatalf("nodes = %+v", doc.Nodes)
	}
	if !strings.Contains(client.prompts[0], ai.ExtractVocabularyFree) {
		t.Error("unconstrained prompt expected")
	}
}

func TestLLMOracle_Error(t *testing.T) {
	oracle, _ := NewLLMOracle(NewLLMOracleParams{Client: &fakeAIClient{err: errFakeOracle}})
	if _, err := oracle.Extract(context.Background(), "text", nil, nil); !errors.Is(err, errFakeOracle) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewOracle_Configuration(t *testing.T) {
	tests := []struct {
		name   string
		params NewOracleParams
		field  string
	}{
		{"remote without key", NewOracleParams{Adapter: "openai", Model: "gpt"}, "APIKey"},
		{"unknown adapter", NewOracleParams{Adapter: "carrier-pigeon", Model: "m"}, "Adapter"},
		{"missing model", NewOracleParams{Adapter: "ollama"}, "Model"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOracle(tc.params)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want configuration error", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("err = %v, want field %s", err, tc.field)
			}
		})
	}
}

func TestNewOracle_Remote(t *testing.T) {
	o, err := NewOracle(NewOracleParams{Adapter: "openai", Model: "gpt-4o-mini", APIKey: "k", ContextWindow: 128000})
	if err != nil {
		t.Fatal(err)
	}
	if id := o.Identity(); id.Local || id.Model != "gpt-4o-mini" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestWithRateLimit(t *testing.T) {
	if got := WithRateLimit(&fakeOracle{}, 0); got == nil {
		t.Fatal("nil oracle")
	}

	inner := &fakeOracle{}
	o := WithRateLimit(inner, 30*time.Millisecond)
	start := time.Now()
	for range 3 {
		if _, err := o.Extract(context.Background(), "a b", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Fatalf("three calls took %v, want at least two intervals", elapsed)
	}
	if o.Identity() != inner.Identity() {
		t.Fatal("identity not forwarded")
	}
}

func TestWithRateLimit_Cancelled(t *testing.T) {
	o := WithRateLimit(&fakeOracle{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := o.Extract(ctx, "a", nil, nil); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := o.Extract(ctx, "a", nil, nil); err == nil {
		t.Fatal("expected error after cancel")
	}
}
