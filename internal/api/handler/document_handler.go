package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/api/metrics"
	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const maxUploadBytes = 50 << 20

// DocumentHandler serves document ingestion and maintenance endpoints.
type DocumentHandler struct {
	service ports.DocumentService
}

func NewDocumentHandler(service ports.DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

type listDocumentsResponse struct {
	Message        string                   `json:"message"`
	TotalDocuments int                      `json:"total_documents"`
	Documents      []domain.DocumentSummary `json:"documents"`
}

type uploadResponse struct {
	Message string `json:"message"`
	domain.UploadResult
}

type deleteDocumentsResponse struct {
	Message       string `json:"message"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// List godoc
// @Summary      List indexed documents
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  listDocumentsResponse
// @Failure      403  {object}  map[string]string
// @Router       /documents [get]
func (h *DocumentHandler) List(c echo.Context) error {
	docs, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []domain.DocumentSummary{}
	}
	return c.JSON(http.StatusOK, listDocumentsResponse{
		Message:        "Documents retrieved successfully",
		TotalDocuments: len(docs),
		Documents:      docs,
	})
}

// Upload godoc
// @Summary      Upload a PDF
// @Description  Splits the PDF into chunks, embeds them and stores them in the index.
// @Tags         documents
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "PDF document"
// @Success      201   {object}  uploadResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /documents [post]
func (h *DocumentHandler) Upload(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer f.Close()

	res, err := h.service.Upload(c.Request().Context(), actor, fh.Filename, f, fh.Size)
	if err != nil {
		return err
	}

	metrics.DocumentsIngestedTotal.Inc()
	metrics.DocumentChunksStoredTotal.Add(float64(res.ChunksStored))

	return c.JSON(http.StatusCreated, uploadResponse{Message: "PDF processed successfully", UploadResult: *res})
}

// Delete godoc
// @Summary      Delete a document by file name
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Param        file_name  query     string  true  "File name"
// @Success      200        {object}  deleteDocumentsResponse
// @Failure      404        {object}  map[string]string
// @Router       /documents [delete]
func (h *DocumentHandler) Delete(c echo.Context) error {
	n, err := h.service.Delete(c.Request().Context(), c.QueryParam("file_name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleteDocumentsResponse{Message: "Documents deleted successfully", ChunksDeleted: n})
}

// Clear godoc
// @Summary      Remove every document from the index
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      403  {object}  map[string]string
// @Router       /documents/collection [delete]
func (h *DocumentHandler) Clear(c echo.Context) error {
	if err := h.service.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Collection cleared successfully"})
}
