package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const (
	DefaultGeminiChatModel  = "gemini-2.5-flash"
	DefaultGeminiEmbedModel = "text-embedding-004"

	// batchEmbedContents accepts at most 100 requests.
	geminiEmbedBatch = 100
)

type GeminiConfig struct {
	APIKey     string
	BaseURL    string // empty for the public endpoint
	ChatModel  string
	EmbedModel string
	Dimension  int
}

type GeminiClient struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	dim        int
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultGeminiChatModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultGeminiEmbedModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		client:     c,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dim:        cfg.Dimension,
	}, nil
}

// EmbedModel is the resolved embedding model (or Azure deployment) name.
func (g *GeminiClient) EmbedModel() string { return g.embedModel }

// Embed sends texts in batches and returns vectors in input order.
func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	var cfg *genai.EmbedContentConfig
	if g.dim > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(g.dim))}
	}

	for start := 0; start < len(texts); start += geminiEmbedBatch {
		end := min(start+geminiEmbedBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for i := start; i < end; i++ {
			clean := normalizeWhitespace(texts[i])
			if clean == "" {
				return nil, fmt.Errorf("empty text for embedding at %d", i)
			}
			contents = append(contents, genai.NewContentFromText(clean, genai.RoleUser))
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embed error: %w", err)
		}
		if len(resp.Embeddings) != len(contents) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(contents))
		}

		for _, e := range resp.Embeddings {
			if g.dim > 0 && len(e.Values) != g.dim {
				return nil, fmt.Errorf("unexpected embedding size %d (expected %d)", len(e.Values), g.dim)
			}
			out = append(out, e.Values)
		}
	}

	return out, nil
}

func (g *GeminiClient) Complete(ctx context.Context, messages []rag.Message, p rag.GenerationParams) (string, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case rag.RoleSystem:
			system = append(system, m.Text)
		default:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no user message")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.Temperature),
		TopP:             genai.Ptr(p.TopP),
		FrequencyPenalty: genai.Ptr(p.FrequencyPenalty),
		PresencePenalty:  genai.Ptr(p.PresencePenalty),
		CandidateCount:   1,
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent error: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	return resp.Text(), nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ rag.Embedder = (*GeminiClient)(nil)
var _ rag.ChatCompleter = (*GeminiClient)(nil)
