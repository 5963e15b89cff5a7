package openai

import (
	"sync"

	"github.com/OFFIS-RIT/storygraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient implements ai.GraphAIClient against any OpenAI-compatible
// chat completions endpoint.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	model   string
	chatURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for creating
// a new GraphOpenAIClient. ChatURL may be empty to use the public OpenAI API.
type NewGraphOpenAIClientParams struct {
	Model   string
	ChatURL string
	ChatKey string
}

// NewGraphOpenAIClient returns a client for the configured endpoint. The
// ChatClient is nil when no key is given; callers validate credentials before
// constructing it.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		Model:   "gpt-4o-mini",
//		ChatKey: os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	return &GraphOpenAIClient{
		model:      params.Model,
		chatURL:    params.ChatURL,
		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

// Model returns the default model name.
func (c *GraphOpenAIClient) Model() string { return c.model }

// Local always reports false.
func (c *GraphOpenAIClient) Local() bool { return false }

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
