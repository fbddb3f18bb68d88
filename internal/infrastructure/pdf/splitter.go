// Package pdf extracts page text from PDF files and splits it into chunks.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var newlinePattern = regexp.MustCompile(`\r\n|\r`)

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Splitter implements ports.DocumentSplitter for PDF documents.
type Splitter struct {
	size    int
	overlap int
}

var _ ports.DocumentSplitter = (*Splitter)(nil)

// NewSplitter validates the chunking settings and returns a Splitter.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		return nil, errors.New("pdf: chunk overlap cannot be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("pdf: chunk overlap %d must be smaller than size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split reads every page of the PDF in r and returns its chunks.
func (s *Splitter) Split(ctx context.Context, r io.ReaderAt, size int64) ([]domain.Chunk, error) {
	pages, total, err := ExtractPages(ctx, r, size)
	if err != nil {
		return nil, err
	}
	return s.SplitPages(pages, total)
}

// ExtractPages returns the plain text of every page together with the
// document's page count. Pages without a content stream are skipped but still
// counted.
func ExtractPages(ctx context.Context, r io.ReaderAt, size int64) ([]Page, int, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrNotPDF, err)
	}

	total := reader.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("pdf: page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, total, nil
}

// SplitPages chunks each page independently so every chunk maps to exactly
// one page.
func (s *Splitter) SplitPages(pages []Page, totalPages int) ([]domain.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.size),
		textsplitter.WithChunkOverlap(s.overlap),
	)

	var chunks []domain.Chunk
	for _, page := range pages {
		text := strings.TrimSpace(newlinePattern.ReplaceAllString(page.Text, "\n"))
		if text == "" {
			continue
		}
		segments, err := splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("pdf: split page %d: %w", page.Number, err)
		}
		for _, seg := range segments {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				Text: seg,
				Metadata: map[string]any{
					domain.MetaPage:       page.Number,
					domain.MetaTotalPages: totalPages,
				},
			})
		}
	}
	return chunks, nil
}
