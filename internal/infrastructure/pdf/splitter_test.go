package pdf

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/docqa-api/internal/core/domain"
)

func TestNewSplitter(t *testing.T) {
	t.Run("Should apply default size", func(t *testing.T) {
		s, err := NewSplitter(0, 10)
		require.NoError(t, err)
		assert.Equal(t, DefaultChunkSize, s.size)
	})
	t.Run("Should reject overlap larger than size", func(t *testing.T) {
		_, err := NewSplitter(100, 100)
		require.Error(t, err)
	})
	t.Run("Should reject negative overlap", func(t *testing.T) {
		_, err := NewSplitter(100, -1)
		require.Error(t, err)
	})
}

func TestSplitter_SplitPages(t *testing.T) {
	s, err := NewSplitter(50, 0)
	require.NoError(t, err)

	long := strings.Repeat("lorem ipsum ", 20)
	pages := []Page{
		{Number: 1, Text: "Short first page.\r\nSecond line."},
		{Number: 2, Text: "   "},
		{Number: 3, Text: long},
	}

	chunks, err := s.SplitPages(pages, 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, "Short first page.\nSecond line.", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Metadata[domain.MetaPage])

	for _, c := range chunks[1:] {
		assert.Equal(t, 3, c.Metadata[domain.MetaPage], "blank page 2 must produce no chunks")
		assert.Equal(t, 3, c.Metadata[domain.MetaTotalPages])
		assert.LessOrEqual(t, len(c.Text), 50)
	}
	assert.Greater(t, len(chunks), 2)
}

func TestSplitter_SplitPagesKeepsDocumentPageCount(t *testing.T) {
	s, err := NewSplitter(100, 0)
	require.NoError(t, err)

	// Pages 2, 4 and 5 had no content stream.
	pages := []Page{
		{Number: 1, Text: "first"},
		{Number: 3, Text: "third"},
	}

	chunks, err := s.SplitPages(pages, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 3, chunks[1].Metadata[domain.MetaPage])
	for _, c := range chunks {
		assert.Equal(t, 5, c.Metadata[domain.MetaTotalPages])
	}
}

func TestSplitter_RejectsNonPDF(t *testing.T) {
	s, err := NewSplitter(100, 10)
	require.NoError(t, err)

	data := []byte("this is plain text, not a pdf")
	_, err = s.Split(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotPDF))
}
