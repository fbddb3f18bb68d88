package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/docqa/docqa-api/internal/core/ports"
)

const defaultQueryCacheSize = 512

// Embedder implements ports.Embedder on top of a langchaingo embedder.
// Query embeddings are memoised in an LRU cache; document embeddings are not,
// since each upload is embedded once.
type Embedder struct {
	impl  embeddings.Embedder
	cache *lru.Cache[string, []float32]
}

var _ ports.Embedder = (*Embedder)(nil)

// NewEmbedder wraps impl. cacheSize <= 0 selects the default cache size.
func NewEmbedder(impl embeddings.Embedder, cacheSize int) (*Embedder, error) {
	if impl == nil {
		return nil, fmt.Errorf("llm: embedder implementation is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("llm: init embedding cache: %w", err)
	}
	return &Embedder{impl: impl, cache: cache}, nil
}

// EmbedDocuments embeds texts in one batch call.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("llm: embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("llm: embed documents: got %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a single query, serving repeats from the cache.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return cloneVector(v), nil
	}
	v, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("llm: embed query: %w", err)
	}
	e.cache.Add(text, cloneVector(v))
	return v, nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
