package ports

import (
	"context"
	"io"

	"github.com/docqa/docqa-api/internal/core/domain"
)

// DocumentIndex stores chunk embeddings and serves similarity queries.
type DocumentIndex interface {
	// Add stores chunks under the given ids and returns the stored ids.
	Add(ctx context.Context, chunks []domain.Chunk, ids []string) ([]string, error)
	// Query returns up to k chunks ranked by similarity to text.
	Query(ctx context.Context, text string, k int) ([]domain.ScoredChunk, error)
	// Delete removes every chunk of fileName and returns how many were removed.
	Delete(ctx context.Context, fileName string) (int, error)
	List(ctx context.Context) ([]domain.DocumentSummary, error)
	Clear(ctx context.Context) error
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DocumentSplitter extracts text from a document and splits it into chunks.
// Returned chunks carry page metadata; ids are assigned by the caller.
type DocumentSplitter interface {
	Split(ctx context.Context, r io.ReaderAt, size int64) ([]domain.Chunk, error)
}

// QAPipeline synthesizes an answer to question from docContext.
type QAPipeline interface {
	Ask(ctx context.Context, docContext, question string) (*domain.Answer, error)
}
