package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const (
	DefaultOpenAIChatModel  = openai.GPT4oMini
	DefaultOpenAIEmbedModel = "text-embedding-3-small"
	DefaultAzureAPIVersion  = "2025-01-01-preview"

	openAIEmbedBatch = 100
)

// OpenAIConfig covers both api.openai.com and Azure OpenAI. For Azure the
// model names are deployment names.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Dimension  int

	Azure         bool
	AzureEndpoint string
	APIVersion    string
}

type OpenAIClient struct {
	client     *openai.Client
	chatModel  string
	embedModel string
	dim        int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		if cfg.Azure {
			return nil, fmt.Errorf("missing AZURE_OPENAI_KEY")
		}
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	var oc openai.ClientConfig
	if cfg.Azure {
		if cfg.AzureEndpoint == "" {
			return nil, fmt.Errorf("missing AZURE_OPENAI_ENDPOINT")
		}
		if cfg.ChatModel == "" || cfg.EmbedModel == "" {
			return nil, fmt.Errorf("azure needs AZURE_DEPLOYMENT_NAME and AZURE_OPENAI_DEPLOYMENT_EMBEDDING")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		oc.APIVersion = cfg.APIVersion
		if oc.APIVersion == "" {
			oc.APIVersion = DefaultAzureAPIVersion
		}
		// deployments are addressed by name, unchanged
		oc.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.ChatModel == "" {
			cfg.ChatModel = DefaultOpenAIChatModel
		}
		if cfg.EmbedModel == "" {
			cfg.EmbedModel = DefaultOpenAIEmbedModel
		}
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(oc),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dim:        cfg.Dimension,
	}, nil
}

// EmbedModel is the resolved embedding model (or Azure deployment) name.
func (c *OpenAIClient) EmbedModel() string { return c.embedModel }

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += openAIEmbedBatch {
		end := min(start+openAIEmbedBatch, len(texts))

		batch := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			clean := normalizeWhitespace(texts[i])
			if clean == "" {
				return nil, fmt.Errorf("empty text for embedding at %d", i)
			}
			batch = append(batch, clean)
		}

		req := openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(c.embedModel),
		}
		if c.dim > 0 {
			req.Dimensions = c.dim
		}

		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai embed error: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(batch))
		}

		// Data carries its own index; do not rely on response order.
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}

	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
	}
	return out, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []rag.Message, p rag.GenerationParams) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == rag.RoleSystem {
			role = openai.ChatMessageRoleSystem
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            c.chatModel,
		Messages:         msgs,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		N:                1,
		Stream:           false,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

var _ rag.Embedder = (*OpenAIClient)(nil)
var _ rag.ChatCompleter = (*OpenAIClient)(nil)
