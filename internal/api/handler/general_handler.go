package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Root godoc
// @Summary      API status
// @Tags         general
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       / [get]
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "Welcome to QA API"})
}
