package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/api/middleware"
	"github.com/docqa/docqa-api/internal/core/domain"
)

type stubDocumentService struct {
	uploadFn func(ctx context.Context, actor *domain.User, fileName string, r io.ReaderAt, size int64) (*domain.UploadResult, error)
	listFn   func(ctx context.Context) ([]domain.DocumentSummary, error)
	deleteFn func(ctx context.Context, fileName string) (int, error)
	clearFn  func(ctx context.Context) error
}

func (s *stubDocumentService) Upload(ctx context.Context, actor *domain.User, fileName string, r io.ReaderAt, size int64) (*domain.UploadResult, error) {
	return s.uploadFn(ctx, actor, fileName, r, size)
}

func (s *stubDocumentService) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	return s.listFn(ctx)
}

func (s *stubDocumentService) Delete(ctx context.Context, fileName string) (int, error) {
	return s.deleteFn(ctx, fileName)
}

func (s *stubDocumentService) Clear(ctx context.Context) error {
	return s.clearFn(ctx)
}

func multipartRequest(t *testing.T, field, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestDocumentHandler_Upload(t *testing.T) {
	e := newEcho()
	content := []byte("%PDF-1.4 fake")
	stub := &stubDocumentService{
		uploadFn: func(_ context.Context, actor *domain.User, fileName string, r io.ReaderAt, size int64) (*domain.UploadResult, error) {
			if actor.ID != 5 || fileName != "report.pdf" || size != int64(len(content)) {
				t.Fatalf("unexpected args: %d %s %d", actor.ID, fileName, size)
			}
			got := make([]byte, size)
			if _, err := r.ReadAt(got, 0); err != nil && err != io.EOF {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Fatalf("content mismatch")
			}
			return &domain.UploadResult{DocumentID: "doc-1", FileName: fileName, ChunksStored: 2, ChunkIDs: []string{"a", "b"}}, nil
		},
	}
	handler := NewDocumentHandler(stub)

	rec := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, "file", "report.pdf", content), rec)
	c.Set(middleware.ContextActor, &domain.User{ID: 5})

	if err := handler.Upload(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["document_id"] != "doc-1" || resp["chunks_stored"] != float64(2) || resp["message"] != "PDF processed successfully" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestDocumentHandler_Upload_MissingFile(t *testing.T) {
	e := newEcho()
	handler := NewDocumentHandler(&stubDocumentService{})

	c := e.NewContext(multipartRequest(t, "attachment", "report.pdf", []byte("x")), httptest.NewRecorder())
	c.Set(middleware.ContextActor, &domain.User{ID: 5})

	err := handler.Upload(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDocumentHandler_ListDeleteClear(t *testing.T) {
	e := newEcho()
	cleared := false
	stub := &stubDocumentService{
		listFn: func(context.Context) ([]domain.DocumentSummary, error) {
			return nil, nil
		},
		deleteFn: func(_ context.Context, fileName string) (int, error) {
			if fileName != "a.pdf" {
				return 0, domain.ErrDocumentNotFound
			}
			return 4, nil
		},
		clearFn: func(context.Context) error {
			cleared = true
			return nil
		},
	}
	handler := NewDocumentHandler(stub)

	rec := httptest.NewRecorder()
	if err := handler.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/documents", nil), rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var list map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list["total_documents"] != float64(0) || list["documents"] == nil {
		t.Fatalf("unexpected list payload: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if err := handler.Delete(e.NewContext(httptest.NewRequest(http.MethodDelete, "/documents?file_name=a.pdf", nil), rec)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	err := handler.Delete(e.NewContext(httptest.NewRequest(http.MethodDelete, "/documents?file_name=b.pdf", nil), httptest.NewRecorder()))
	if err != domain.ErrDocumentNotFound {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}

	if err := handler.Clear(e.NewContext(httptest.NewRequest(http.MethodDelete, "/documents/collection", nil), httptest.NewRecorder())); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared {
		t.Fatalf("clear not called")
	}
}
