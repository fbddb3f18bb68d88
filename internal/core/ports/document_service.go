package ports

import (
	"context"
	"io"

	"github.com/docqa/docqa-api/internal/core/domain"
)

type DocumentService interface {
	Upload(ctx context.Context, actor *domain.User, fileName string, r io.ReaderAt, size int64) (*domain.UploadResult, error)
	List(ctx context.Context) ([]domain.DocumentSummary, error)
	Delete(ctx context.Context, fileName string) (int, error)
	Clear(ctx context.Context) error
}

type QAService interface {
	Ask(ctx context.Context, question string) (*domain.Answer, error)
}
