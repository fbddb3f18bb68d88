package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const fileTypePDF = "pdf"

// DocumentService ingests PDF uploads into the document index.
type DocumentService struct {
	index    ports.DocumentIndex
	splitter ports.DocumentSplitter
	log      zerolog.Logger
	newID    func() string
	now      func() time.Time
}

func NewDocumentService(index ports.DocumentIndex, splitter ports.DocumentSplitter, log zerolog.Logger) *DocumentService {
	return &DocumentService{
		index:    index,
		splitter: splitter,
		log:      log,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Upload splits a PDF into chunks, tags each chunk with its source and stores
// them in the index.
func (s *DocumentService) Upload(ctx context.Context, actor *domain.User, fileName string, r io.ReaderAt, size int64) (*domain.UploadResult, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, domain.ErrNotPDF
	}

	chunks, err := s.splitter.Split(ctx, r, size)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	docID := s.newID()
	uploadedAt := s.now().UTC().Format(time.RFC3339)
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = s.newID()
		meta := chunks[i].Metadata
		if meta == nil {
			meta = make(map[string]any)
		}
		meta[domain.MetaFileName] = fileName
		meta[domain.MetaFileType] = fileTypePDF
		meta[domain.MetaDocumentID] = docID
		meta[domain.MetaChunkID] = ids[i]
		meta["uploaded_at"] = uploadedAt
		if actor != nil {
			meta[domain.MetaUploadedBy] = actor.ID
		}
		chunks[i].ID = ids[i]
		chunks[i].Metadata = meta
	}

	stored, err := s.index.Add(ctx, chunks, ids)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}

	s.log.Info().
		Str("document_id", docID).
		Str("file_name", fileName).
		Int("chunks", len(stored)).
		Msg("document indexed")

	return &domain.UploadResult{
		DocumentID:   docID,
		FileName:     fileName,
		ChunksStored: len(stored),
		ChunkIDs:     stored,
	}, nil
}

func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	return s.index.List(ctx)
}

// Delete removes every chunk of fileName.
func (s *DocumentService) Delete(ctx context.Context, fileName string) (int, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return 0, domain.ErrDocumentNotFound
	}
	n, err := s.index.Delete(ctx, fileName)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("file_name", fileName).Int("chunks", n).Msg("document deleted")
	return n, nil
}

func (s *DocumentService) Clear(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	s.log.Warn().Msg("document collection cleared")
	return nil
}
