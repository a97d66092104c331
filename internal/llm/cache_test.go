package llm

import (
	"context"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("component %d: %v != %v", i, out[i], in[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated vector")
	}
}

func TestCacheKeySeparatesVectorSpaces(t *testing.T) {
	base := CacheConfig{Provider: "gemini", Model: DefaultGeminiEmbedModel, Dimension: 768}
	variants := map[string]CacheConfig{
		"dimension": {Provider: "gemini", Model: DefaultGeminiEmbedModel, Dimension: 1536},
		"provider":  {Provider: "openai", Model: DefaultGeminiEmbedModel, Dimension: 768},
		"model":     {Provider: "gemini", Model: "gemini-embedding-001", Dimension: 768},
	}

	want := NewCachedEmbedder(nil, nil, base, nil).key("refund window")
	if again := NewCachedEmbedder(nil, nil, base, nil).key("refund window"); again != want {
		t.Fatalf("key not stable: %q != %q", again, want)
	}
	for name, cfg := range variants {
		if got := NewCachedEmbedder(nil, nil, cfg, nil).key("refund window"); got == want {
			t.Errorf("changing %s kept the same key %q", name, got)
		}
	}
}

func TestCachedEmbedder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in -short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	rdb, err := NewRedisClient("redis://" + endpoint)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, rdb, CacheConfig{Provider: "test", Model: "test-model"}, nil)

	first, err := c.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", inner.calls)
	}

	second, err := c.Embed(ctx, []string{"beta", "gamma", "alpha"})
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", inner.calls)
	}
	if second[0][0] != first[1][0] || second[2][0] != first[0][0] {
		t.Fatalf("cached vectors not reused: first=%v second=%v", first, second)
	}
	// gamma was the only miss, so the provider saw it at position 0
	if second[1][0] != 0 {
		t.Fatalf("unexpected vector for gamma: %v", second[1])
	}
}
