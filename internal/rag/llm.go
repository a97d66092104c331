package rag

import "context"

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ChatCompleter interface {
	Complete(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}
