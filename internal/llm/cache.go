package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const DefaultCacheTTL = 24 * time.Hour

// CacheConfig identifies the vector space being cached. Provider, model and
// dimension are all part of the key, so switching any of them starts cold.
type CacheConfig struct {
	Provider  string
	Model     string
	Dimension int // 0 means the model's native size
	TTL       time.Duration
}

// CachedEmbedder stores vectors in Redis keyed by vector space and text hash.
// Redis failures are logged and the call goes straight to the provider.
type CachedEmbedder struct {
	next   rag.Embedder
	rdb    *redis.Client
	prefix string
	dim    int
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedEmbedder(next rag.Embedder, rdb *redis.Client, cfg CacheConfig, log *zap.Logger) *CachedEmbedder {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedEmbedder{
		next:   next,
		rdb:    rdb,
		prefix: fmt.Sprintf("askdocs:emb:%s:%s:%d:", cfg.Provider, cfg.Model, cfg.Dimension),
		dim:    cfg.Dimension,
		ttl:    cfg.TTL,
		log:    log,
	}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missing []int

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("embedding cache read failed", zap.Error(err))
		cached = nil
	}
	for i := range texts {
		if cached != nil {
			if s, ok := cached[i].(string); ok {
				if v, err := decodeVector([]byte(s)); err == nil && (c.dim == 0 || len(v) == c.dim) {
					out[i] = v
					continue
				}
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	todo := make([]string, len(missing))
	for j, i := range missing {
		todo[j] = texts[i]
	}
	fresh, err := c.next.Embed(ctx, todo)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(todo) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(todo))
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missing {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("embedding cache write failed", zap.Error(err))
	}

	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("bad cached vector length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

var _ rag.Embedder = (*CachedEmbedder)(nil)
