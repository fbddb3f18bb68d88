package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docqa/docqa-api/internal/api/metrics"
	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/service"
)

// Authorizer is the authorization gate as seen by the HTTP layer.
type Authorizer interface {
	Authorize(ctx context.Context, action, resourceType, bearerToken string) (*domain.User, error)
}

// RequirePermission runs the gate for (action, resourceType) before next.
// On success the actor and its token are stored in the echo context; on
// failure the gate's error is returned unchanged for the error handler.
func RequirePermission(gate Authorizer, action, resourceType string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c)

			ctx := c.Request().Context()
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
				ctx = service.WithRequestID(ctx, rid)
			}

			start := time.Now()
			actor, err := gate.Authorize(ctx, action, resourceType, token)
			metrics.AuthzDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
			metrics.AuthzDecisionsTotal.WithLabelValues(action, outcome(err)).Inc()
			if err != nil {
				return err
			}

			c.Set(ContextActor, actor)
			c.Set(ContextToken, token)
			return next(c)
		}
	}
}

// Guard wraps a single handler with the same check RequirePermission performs.
func Guard(gate Authorizer, action, resourceType string, next echo.HandlerFunc) echo.HandlerFunc {
	return RequirePermission(gate, action, resourceType)(next)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return domain.DecisionAllow
	case errors.Is(err, domain.ErrPolicyEvaluation):
		return domain.DecisionError
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return domain.DecisionDeny
	}
}
