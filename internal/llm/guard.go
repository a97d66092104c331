package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

type GuardConfig struct {
	Name string
	// RPS <= 0 disables the rate limiter.
	RPS   float64
	Burst int
}

// Guard puts a rate limiter and a circuit breaker in front of provider
// calls. Each call is attempted at most once.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuard(cfg GuardConfig, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	g := &Guard{breaker: breaker}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return g
}

// Do waits for the limiter and runs fn through the breaker. An open breaker
// fails fast with gobreaker.ErrOpenState.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

type GuardedEmbedder struct {
	next  rag.Embedder
	guard *Guard
}

func NewGuardedEmbedder(next rag.Embedder, guard *Guard) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, guard: guard}
}

func (e *GuardedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, texts)
		return err
	})
	return out, err
}

type GuardedCompleter struct {
	next  rag.ChatCompleter
	guard *Guard
}

func NewGuardedCompleter(next rag.ChatCompleter, guard *Guard) *GuardedCompleter {
	return &GuardedCompleter{next: next, guard: guard}
}

func (c *GuardedCompleter) Complete(ctx context.Context, messages []rag.Message, p rag.GenerationParams) (string, error) {
	var out string
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.Complete(ctx, messages, p)
		return err
	})
	return out, err
}

var _ rag.Embedder = (*GuardedEmbedder)(nil)
var _ rag.ChatCompleter = (*GuardedCompleter)(nil)
