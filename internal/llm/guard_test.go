package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type failingCompleter struct{ calls int }

func (f *failingCompleter) Complete(context.Context, []rag.Message, rag.GenerationParams) (string, error) {
	f.calls++
	return "", errors.New("upstream 500")
}

func TestGuardPassesThrough(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewGuardedEmbedder(inner, NewGuard(GuardConfig{Name: "embed", RPS: 100, Burst: 10}, nil))

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || inner.calls != 1 {
		t.Fatalf("got %d vectors after %d calls", len(vecs), inner.calls)
	}
}

func TestGuardDoesNotRetry(t *testing.T) {
	inner := &failingCompleter{}
	c := NewGuardedCompleter(inner, NewGuard(GuardConfig{Name: "chat"}, nil))

	if _, err := c.Complete(context.Background(), nil, rag.DefaultParams()); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("provider called %d times, want 1", inner.calls)
	}
}

func TestGuardOpensAfterFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	e := NewGuardedEmbedder(inner, NewGuard(GuardConfig{Name: "embed"}, nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Embed(ctx, []string{"x"}); err == nil {
			t.Fatal("expected error")
		}
	}

	_, err := e.Embed(ctx, []string{"x"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("provider called %d times while open, want 3", inner.calls)
	}
}

func TestGuardHonoursCancelledContext(t *testing.T) {
	inner := &countingEmbedder{}
	g := NewGuard(GuardConfig{Name: "embed", RPS: 0.001, Burst: 1}, nil)
	e := NewGuardedEmbedder(inner, g)

	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, []string{"x"}); err == nil {
		t.Fatal("expected limiter error on cancelled context")
	}
	if inner.calls != 1 {
		t.Fatalf("provider called %d times, want 1", inner.calls)
	}
}
