// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// NewClient builds the client named by cfg.Provider. When
// cfg.RequestsPerSecond is positive the client is wrapped with a limiter
// shared by every caller.
func NewClient(cfg types.LLMConfig) (Client, error) {
	var (
		c   Client
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		c, err = NewOpenAIClient(cfg)
	case "anthropic", "claude":
		c, err = NewAnthropicClient(cfg)
	case "ollama":
		c, err = NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q (supported: openai, anthropic, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond > 0 {
		c = WithRateLimit(c, cfg.RequestsPerSecond)
	}
	return c, nil
}

// WithRateLimit wraps c so that calls are spaced at most rps per second
// with a burst of one.
func WithRateLimit(c Client, rps float64) Client {
	return &limitedClient{next: c, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

type limitedClient struct {
	next    Client
	limiter *rate.Limiter
}

func (l *limitedClient) Name() string { return l.next.Name() }

func (l *limitedClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return l.next.Complete(ctx, req)
}
