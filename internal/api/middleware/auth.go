package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys set by RequirePermission for downstream handlers.
const (
	ContextActor = "actor"
	ContextToken = "bearer_token"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively; an absent or malformed
// header yields "".
func BearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
