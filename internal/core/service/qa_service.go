package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const defaultTopK = 5

// QAService answers questions from the indexed documents.
type QAService struct {
	index    ports.DocumentIndex
	pipeline ports.QAPipeline
	topK     int
	log      zerolog.Logger
}

func NewQAService(index ports.DocumentIndex, pipeline ports.QAPipeline, topK int, log zerolog.Logger) *QAService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &QAService{index: index, pipeline: pipeline, topK: topK, log: log}
}

// Ask retrieves the closest chunks, passes them as context to the pipeline
// and attributes the answer to its source documents.
func (s *QAService) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuery
	}

	hits, err := s.index.Query(ctx, question, s.topK)
	if err != nil {
		return nil, fmt.Errorf("ask: query index: %w", err)
	}

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}

	answer, err := s.pipeline.Ask(ctx, strings.Join(texts, "\n\n"), question)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	answer.Sources = sourcesOf(hits)

	s.log.Info().
		Int("context_chunks", len(hits)).
		Int("total_tokens", answer.Usage.TotalTokens).
		Msg("question answered")
	return answer, nil
}

func sourcesOf(hits []domain.ScoredChunk) []domain.SourceMetadata {
	out := make([]domain.SourceMetadata, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.SourceMetadata{
			FileName:   metaString(h.Metadata, domain.MetaFileName),
			FileType:   metaString(h.Metadata, domain.MetaFileType),
			TotalPages: metaInt(h.Metadata, domain.MetaTotalPages),
			Page:       metaInt(h.Metadata, domain.MetaPage),
		})
	}
	return out
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// metaInt accepts the numeric shapes metadata takes before and after a JSON round trip.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
