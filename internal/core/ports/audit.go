package ports

import (
	"context"

	"github.com/docqa/docqa-api/internal/core/domain"
)

// AuditRepository persists authorization decisions.
type AuditRepository interface {
	InsertDecision(ctx context.Context, event *domain.AuthzEvent) error
}

// AuditSink accepts decisions for asynchronous recording. Record must not block
// the request path.
type AuditSink interface {
	Record(event domain.AuthzEvent)
}
