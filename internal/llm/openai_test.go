package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

func openAIMock(t *testing.T, lastChat *openai.ChatCompletionRequest, paths *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*paths = append(*paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode embeddings request: %v", err)
			}
			// answer in reverse order to check that Index is honoured
			data := make([]map[string]any, 0, len(req.Input))
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{float32(len(req.Input[i])), 0.5},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})

		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			if err := json.NewDecoder(r.Body).Decode(lastChat); err != nil {
				t.Errorf("decode chat request: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "grounded answer"},
					"finish_reason": "stop",
				}},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedKeepsOrder(t *testing.T) {
	var (
		chat  openai.ChatCompletionRequest
		paths []string
	)
	srv := openAIMock(t, &chat, &paths)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	vecs, err := c.Embed(context.Background(), []string{"a", "bbb", "cc"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{1, 3, 2}
	for i, v := range vecs {
		if v[0] != want[i] {
			t.Fatalf("vector %d = %v, want first component %v", i, v, want[i])
		}
	}
}

func TestOpenAICompleteSendsParams(t *testing.T) {
	var (
		chat  openai.ChatCompletionRequest
		paths []string
	)
	srv := openAIMock(t, &chat, &paths)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", ChatModel: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	msgs := rag.BuildMessages("How long is the warranty?", "The warranty lasts two years.")
	got, err := c.Complete(context.Background(), msgs, rag.DefaultParams())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "grounded answer" {
		t.Fatalf("got %q", got)
	}

	if chat.Model != "gpt-test" || chat.Stream || chat.MaxTokens != 6553 {
		t.Fatalf("unexpected request: %+v", chat)
	}
	if chat.Temperature != 0.7 || chat.TopP != 0.95 || chat.PresencePenalty != 0 || chat.FrequencyPenalty != 0 {
		t.Fatalf("unexpected sampling params: %+v", chat)
	}
	if len(chat.Messages) != 2 || chat.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("unexpected messages: %+v", chat.Messages)
	}
	if !strings.Contains(chat.Messages[0].Content, "The warranty lasts two years.") {
		t.Fatalf("context missing from system message: %q", chat.Messages[0].Content)
	}
	if chat.Messages[1].Content != "How long is the warranty?" {
		t.Fatalf("unexpected user message: %q", chat.Messages[1].Content)
	}
}

func TestAzureUsesDeployments(t *testing.T) {
	var (
		chat  openai.ChatCompletionRequest
		paths []string
	)
	srv := openAIMock(t, &chat, &paths)

	c, err := NewOpenAIClient(OpenAIConfig{
		Azure:         true,
		APIKey:        "k",
		AzureEndpoint: srv.URL,
		ChatModel:     "chat-deploy",
		EmbedModel:    "embed-deploy",
		APIVersion:    "2024-10-21",
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	if _, err := c.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := c.Complete(context.Background(), rag.BuildMessages("hi there", ""), rag.DefaultParams()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	want := []string{
		"/openai/deployments/embed-deploy/embeddings?api-version=2024-10-21",
		"/openai/deployments/chat-deploy/chat/completions?api-version=2024-10-21",
	}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
}

func TestNewOpenAIClientValidates(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{Azure: true, APIKey: "k"}); err == nil {
		t.Error("expected error without azure endpoint")
	}
}

func TestOpenAIEmbedModelResolved(t *testing.T) {
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if got := c.EmbedModel(); got != DefaultOpenAIEmbedModel {
		t.Fatalf("EmbedModel() = %q, want %q", got, DefaultOpenAIEmbedModel)
	}

	az, err := NewOpenAIClient(OpenAIConfig{
		APIKey: "k", Azure: true, AzureEndpoint: "https://example.openai.azure.com",
		ChatModel: "chat-deploy", EmbedModel: "embed-deploy",
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient azure: %v", err)
	}
	if got := az.EmbedModel(); got != "embed-deploy" {
		t.Fatalf("azure EmbedModel() = %q", got)
	}
}
