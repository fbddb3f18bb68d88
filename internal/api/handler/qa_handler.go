package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/api/metrics"
	"github.com/docqa/docqa-api/internal/core/ports"
)

type QAHandler struct {
	service ports.QAService
}

func NewQAHandler(service ports.QAService) *QAHandler {
	return &QAHandler{service: service}
}

type askRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

// Ask godoc
// @Summary      Answer a question from the indexed documents
// @Tags         qa
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      askRequest  true  "Question"
// @Success      200   {object}  domain.Answer
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /qa [post]
func (h *QAHandler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Query == "" {
		req.Query = c.QueryParam("query")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	answer, err := h.service.Ask(c.Request().Context(), req.Query)
	if err != nil {
		return err
	}

	metrics.QATokensTotal.WithLabelValues("input").Add(float64(answer.Usage.InputTokens))
	metrics.QATokensTotal.WithLabelValues("output").Add(float64(answer.Usage.OutputTokens))

	return c.JSON(http.StatusOK, answer)
}
