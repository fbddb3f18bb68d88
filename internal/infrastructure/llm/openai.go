// Package llm adapts langchaingo models to the embedding and answer ports.
package llm

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config captures the OpenAI-compatible endpoint settings.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
}

// NewOpenAI builds a langchaingo OpenAI client usable both for chat
// completions and for embeddings.
func NewOpenAI(cfg Config) (*openai.LLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: openai client: %w", err)
	}
	return client, nil
}

// NewOpenAIEmbedder wraps client in a langchaingo embedder.
func NewOpenAIEmbedder(client *openai.LLM) (embeddings.Embedder, error) {
	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(64))
	if err != nil {
		return nil, fmt.Errorf("llm: embedder: %w", err)
	}
	return emb, nil
}
