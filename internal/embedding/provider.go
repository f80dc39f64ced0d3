// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding generates vector embeddings for paper text.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the name of the embedding model. Stored vectors
	// are tagged with it so a model change can be detected.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg types.EmbeddingConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		var opts []OllamaOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, WithDimensions(cfg.Dimensions))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		return NewOllamaProvider(opts...), nil
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q (supported: ollama, openai)", cfg.Provider)
	}
}

// maxTextChars bounds the text sent for one embedding.
const maxTextChars = 8000

// Text returns the string embedded for a paper: its title followed by
// its abstract, truncated on a rune boundary.
func Text(p types.Paper) string {
	text := strings.TrimSpace(p.Title)
	if abs := strings.TrimSpace(p.Abstract); abs != "" {
		text += "\n\n" + abs
	}
	if len(text) <= maxTextChars {
		return text
	}
	runes := []rune(text)
	if len(runes) > maxTextChars {
		runes = runes[:maxTextChars]
	}
	return string(runes)
}
