package rag

import (
	"context"
	"strings"

	wl "github.com/abadojack/whatlanggo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "askdocs-rag/rag"

// DefaultParams mirrors the chat settings the service has always used.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Temperature:      0.7,
		TopP:             0.95,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		MaxTokens:        6553,
	}
}

// Generator turns a question plus retrieved context into an answer with a
// single chat completion call.
type Generator struct {
	llm    ChatCompleter
	params GenerationParams
	log    *zap.Logger
}

func NewGenerator(llm ChatCompleter, params GenerationParams, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{llm: llm, params: params, log: log}
}

func (g *Generator) Answer(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.generate")
	defer span.End()

	q := strings.TrimSpace(question)
	if q == "" {
		return "", &GenerationError{Err: ErrEmptyQuestion}
	}

	span.SetAttributes(
		attribute.Int("rag.context_chars", len(contextText)),
		attribute.Float64("rag.temperature", float64(g.params.Temperature)),
		attribute.Int("rag.max_tokens", g.params.MaxTokens),
	)

	// the top completion is returned as is, even when empty
	reply, err := g.llm.Complete(ctx, BuildMessages(q, contextText), g.params)
	if err != nil {
		g.log.Error("chat completion failed", zap.String("op", "generate"), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return "", &GenerationError{Err: err}
	}

	return reply, nil
}

// BuildMessages returns the system + user prompt. The context is copied
// verbatim into the system message.
func BuildMessages(question, contextText string) []Message {
	var sys strings.Builder

	if strings.TrimSpace(contextText) == "" {
		sys.WriteString("You are a helpful assistant.")
	} else {
		sys.WriteString("You are a helpful assistant that answers questions about an uploaded document. ")
		sys.WriteString("Answer ONLY with information from the context below. ")
		sys.WriteString("If the answer is not in the context, say that the document does not contain it.")
	}

	if lang := answerLanguage(question); lang != "" {
		sys.WriteString(" Reply in ")
		sys.WriteString(lang)
		sys.WriteString(".")
	}

	if strings.TrimSpace(contextText) != "" {
		sys.WriteString("\n\nContext:\n")
		sys.WriteString(contextText)
	}

	return []Message{
		{Role: RoleSystem, Text: sys.String()},
		{Role: RoleUser, Text: question},
	}
}

// JoinContext concatenates chunk texts, already in rank order.
func JoinContext(texts []string) string {
	return strings.Join(texts, "\n\n")
}

// answerLanguage guesses the question language. Short or ambiguous input
// yields "" and the model picks.
func answerLanguage(s string) string {
	if len([]rune(strings.TrimSpace(s))) < 12 {
		return ""
	}
	info := wl.Detect(s)
	if info.Confidence < 0.5 {
		return ""
	}
	switch info.Lang {
	case wl.Por:
		return "Brazilian Portuguese"
	case wl.Eng:
		return "English"
	case wl.Spa:
		return "Spanish"
	case wl.Fra:
		return "French"
	case wl.Deu:
		return "German"
	case wl.Ita:
		return "Italian"
	default:
		return ""
	}
}
