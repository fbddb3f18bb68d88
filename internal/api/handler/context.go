package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/api/middleware"
	"github.com/docqa/docqa-api/internal/core/domain"
)

// ctxActor returns the user injected by the RequirePermission middleware.
// A missing actor means the route was registered without a guard.
func ctxActor(c echo.Context) (*domain.User, error) {
	actor, _ := c.Get(middleware.ContextActor).(*domain.User)
	if actor == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return actor, nil
}

func ctxToken(c echo.Context) string {
	token, _ := c.Get(middleware.ContextToken).(string)
	return token
}

// messageResponse is the envelope for operations that return no resource.
type messageResponse struct {
	Message string `json:"message"`
}
