// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/pkg/types"
)

func TestNewOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider()
	assert.Equal(t, DefaultOllamaURL, p.baseURL)
	assert.Equal(t, DefaultModel, p.ModelName())
	assert.Equal(t, DefaultDimensions, p.Dimensions())
	assert.Equal(t, DefaultTimeout, p.client.Timeout)
}

func TestNewOllamaProvider_WithOptions(t *testing.T) {
	p := NewOllamaProvider(
		WithBaseURL("http://custom:8080"),
		WithModel("nomic-embed-text"),
		WithDimensions(768),
		WithTimeout(time.Minute),
	)
	assert.Equal(t, "http://custom:8080", p.baseURL)
	assert.Equal(t, "nomic-embed-text", p.ModelName())
	assert.Equal(t, 768, p.Dimensions())
	assert.Equal(t, time.Minute, p.client.Timeout)
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiPathEmbeddings, r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tiny", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithBaseURL(srv.URL), WithModel("tiny"), WithDimensions(3))
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaProvider_Embed_WrongDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(3))
	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 2, want 3")
}

func TestOllamaProvider_Embed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithBaseURL(srv.URL))
	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.EqualValues(t, 2, body["dimensions"])
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.5]}],"model":"text-embedding-3-small"}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(types.EmbeddingConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5}, vec)
	assert.Equal(t, "text-embedding-3-small", p.ModelName())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(types.EmbeddingConfig{Provider: "ollama", Model: "m", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, "m", p.ModelName())
	assert.Equal(t, 8, p.Dimensions())

	_, err = NewProvider(types.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err, "openai requires a key")

	_, err = NewProvider(types.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	assert.Equal(t, "Title", Text(types.Paper{Title: " Title "}))
	assert.Equal(t, "Title\n\nAbstract", Text(types.Paper{Title: "Title", Abstract: "Abstract"}))

	long := Text(types.Paper{Title: "T", Abstract: strings.Repeat("é", 9000)})
	assert.Equal(t, maxTextChars, len([]rune(long)))
}
