package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/ai/ollama"
	"github.com/OFFIS-RIT/storygraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/storygraph/pkg/common"

	"golang.org/x/time/rate"
)

// ExtractionOracle turns a text window into a graph. Nil vocabularies mean the
// oracle may use any node or relationship type.
type ExtractionOracle interface {
	Extract(ctx context.Context, text string, allowedNodes, allowedRelationships []string) (common.GraphDocument, error)
	Identity() common.OracleIdentity
}

type oracleProperty struct {
	Key   string `json:"key" jsonschema_description:"Property name, e.g. name, role, age"`
	Value string `json:"value" jsonschema_description:"Property value as stated in the passage"`
}

type oracleNode struct {
	ID         string           `json:"id" jsonschema_description:"Canonical name of the entity, used to reference it"`
	Type       string           `json:"type" jsonschema_description:"One of the allowed node types"`
	Properties []oracleProperty `json:"properties" jsonschema_description:"Descriptive properties, including name"`
}

type oracleRelationship struct {
	Source     string           `json:"source" jsonschema_description:"id of the source node"`
	Target     string           `json:"target" jsonschema_description:"id of the target node"`
	Type       string           `json:"type" jsonschema_description:"One of the allowed relationship types"`
	Properties []oracleProperty `json:"properties" jsonschema_description:"Descriptive properties of the relationship"`
}

type oracleResponse struct {
	Nodes         []oracleNode         `json:"nodes" jsonschema_description:"Entities in the passage"`
	Relationships []oracleRelationship `json:"relationships" jsonschema_description:"Relationships between the entities"`
}

// LLMOracle extracts graphs with a language model using structured output.
type LLMOracle struct {
	client   ai.GraphAIClient
	identity common.OracleIdentity
	opts     []ai.GenerateOption
	strict   bool
}

// NewLLMOracleParams configures an LLMOracle.
type NewLLMOracleParams struct {
	Client        ai.GraphAIClient
	ContextWindow int
	Temperature   float64
	Thinking      string

	// Strict drops nodes and relationships whose type is outside the
	// requested vocabulary. By default such types are kept as returned.
	Strict bool
}

// NewLLMOracle wraps an AI client as an extraction oracle.
func NewLLMOracle(params NewLLMOracleParams) (*LLMOracle, error) {
	if params.Client == nil {
		return nil, &ConfigurationError{Field: "Client", Reason: "an AI client is required"}
	}
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractSystemPrompt),
		ai.WithTemperature(params.Temperature),
	}
	if params.ContextWindow > 0 {
		opts = append(opts, ai.WithContextWindow(params.ContextWindow))
	}
	if params.Thinking != "" {
		opts = append(opts, ai.WithThinking(params.Thinking))
	}
	return &LLMOracle{
		client: params.Client,
		identity: common.OracleIdentity{
			Local:         params.Client.Local(),
			Model:         params.Client.Model(),
			ContextWindow: params.ContextWindow,
		},
		opts:   opts,
		strict: params.Strict,
	}, nil
}

// Identity returns the backend identity used in cache keys.
func (o *LLMOracle) Identity() common.OracleIdentity {
	return o.identity
}

// Client exposes the underlying AI client, e.g. for schema generation.
func (o *LLMOracle) Client() ai.GraphAIClient {
	return o.client
}

// Extract asks the model for the graph of one text window.
func (o *LLMOracle) Extract(
	ctx context.Context,
	text string,
	allowedNodes, allowedRelationships []string,
) (common.GraphDocument, error) {
	vocab := ai.ExtractVocabularyFree
	if len(allowedNodes) > 0 || len(allowedRelationships) > 0 {
		vocab = fmt.Sprintf(
			ai.ExtractVocabularyConstrained,
			strings.Join(allowedNodes, ", "),
			strings.Join(allowedRelationships, ", "),
		)
	}
	prompt := fmt.Sprintf(ai.ExtractGraphPrompt, vocab, text)

	var res oracleResponse
	err := o.client.GenerateCompletionWithFormat(
		ctx,
		"extract_narrative_graph",
		"Extract entities and relationships from a passage of narrative text.",
		prompt,
		&res,
		o.opts...,
	)
	if err != nil {
		return common.GraphDocument{}, err
	}

	return normalizeResponse(res, allowedNodes, allowedRelationships, o.strict), nil
}

// normalizeResponse converts the model answer into a partial graph. A node
// without an id takes its name; a node without a name gets its id as name.
// Nodes that still have no id are dropped, as are entries without a type.
// Types matching the vocabulary case-insensitively take its spelling; other
// types are kept unless strict is set.
func normalizeResponse(res oracleResponse, allowedNodes, allowedRelationships []string, strict bool) common.GraphDocument {
	nodeTypes := vocabulary(allowedNodes)
	relTypes := vocabulary(allowedRelationships)

	doc := common.GraphDocument{
		Nodes:         make([]common.Node, 0, len(res.Nodes)),
		Relationships: make([]common.Relationship, 0, len(res.Relationships)),
	}
	for _, n := range res.Nodes {
		props := toProperties(n.Properties)
		node, ok := normalizeNode(common.Node{ID: strings.TrimSpace(n.ID), Type: strings.TrimSpace(n.Type), Properties: props})
		if !ok {
			continue
		}
		t, ok := nodeTypes.match(node.Type, strict)
		if !ok {
			continue
		}
		node.Type = t
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, r := range res.Relationships {
		source := strings.TrimSpace(r.Source)
		target := strings.TrimSpace(r.Target)
		if source == "" || target == "" {
			continue
		}
		t, ok := relTypes.match(strings.TrimSpace(r.Type), strict)
		if !ok {
			continue
		}
		doc.Relationships = append(doc.Relationships, common.Relationship{
			SourceID:   source,
			TargetID:   target,
			Type:       t,
			Properties: toProperties(r.Properties),
		})
	}
	return doc
}

func normalizeNode(n common.Node) (common.Node, bool) {
	if n.Properties == nil {
		n.Properties = map[string]any{}
	}
	if n.ID == "" {
		if name, ok := n.Properties["name"].(string); ok {
			n.ID = strings.TrimSpace(name)
		}
	}
	if n.ID == "" {
		return n, false
	}
	if name, ok := n.Properties["name"].(string); !ok || strings.TrimSpace(name) == "" {
		n.Properties["name"] = n.ID
	}
	return n, true
}

func toProperties(props []oracleProperty) map[string]any {
	out := make(map[string]any, len(props))
	for _, p := range props {
		k := strings.TrimSpace(p.Key)
		if k == "" {
			continue
		}
		out[k] = p.Value
	}
	return out
}

type typeSet map[string]string

func vocabulary(types []string) typeSet {
	if len(types) == 0 {
		return nil
	}
	s := make(typeSet, len(types))
	for _, t := range types {
		s[strings.ToLower(t)] = t
	}
	return s
}

// match returns the canonical spelling of t. Unknown types pass through
// unchanged unless strict is set; a nil set accepts everything.
func (s typeSet) match(t string, strict bool) (string, bool) {
	if t == "" {
		return "", false
	}
	if canonical, ok := s[strings.ToLower(t)]; ok {
		return canonical, true
	}
	return t, s == nil || !strict
}

type rateLimitedOracle struct {
	ExtractionOracle
	limiter *rate.Limiter
}

// WithRateLimit returns an oracle that waits at least minInterval between
// calls. The limiter is shared by every caller of the returned oracle. A
// non-positive interval returns o unchanged.
func WithRateLimit(o ExtractionOracle, minInterval time.Duration) ExtractionOracle {
	if minInterval <= 0 {
		return o
	}
	return &rateLimitedOracle{
		ExtractionOracle: o,
		limiter:          rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (o *rateLimitedOracle) Extract(
	ctx context.Context,
	text string,
	allowedNodes, allowedRelationships []string,
) (common.GraphDocument, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return common.GraphDocument{}, err
	}
	return o.ExtractionOracle.Extract(ctx, text, allowedNodes, allowedRelationships)
}

// NewOracleParams selects and configures an oracle backend.
type NewOracleParams struct {
	// Adapter is "ollama" or "openai".
	Adapter       string
	BaseURL       string
	APIKey        string
	Model         string
	ContextWindow int
	Temperature   float64
	Thinking      string
	ParallelReq   int64
	StrictTypes   bool
}

// NewAIClient builds the AI client for the configured adapter. A remote
// adapter without an API key is a ConfigurationError.
func NewAIClient(params NewOracleParams) (ai.GraphAIClient, error) {
	if strings.TrimSpace(params.Model) == "" {
		return nil, &ConfigurationError{Field: "Model", Reason: "a model name is required"}
	}
	switch params.Adapter {
	case "ollama":
		client, err := ollama.NewGraphOllamaClient(ollama.NewGraphOllamaClientParams{
			Model:                 params.Model,
			ContextWindow:         params.ContextWindow,
			BaseURL:               params.BaseURL,
			ApiKey:                params.APIKey,
			MaxConcurrentRequests: params.ParallelReq,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case "openai":
		if params.APIKey == "" {
			return nil, &ConfigurationError{Field: "APIKey", Reason: "remote adapter requires an API key"}
		}
		return openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
			Model:   params.Model,
			ChatURL: params.BaseURL,
			ChatKey: params.APIKey,
		}), nil
	default:
		return nil, &ConfigurationError{Field: "Adapter", Reason: fmt.Sprintf("unknown adapter %q", params.Adapter)}
	}
}

// NewOracle builds an LLMOracle for the configured adapter.
func NewOracle(params NewOracleParams) (*LLMOracle, error) {
	client, err := NewAIClient(params)
	if err != nil {
		return nil, err
	}
	return NewLLMOracle(NewLLMOracleParams{
		Client:        client,
		ContextWindow: params.ContextWindow,
		Temperature:   params.Temperature,
		Thinking:      params.Thinking,
		Strict:        params.StrictTypes,
	})
}
