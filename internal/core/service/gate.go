package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/policy"
	"github.com/docqa/docqa-api/internal/core/ports"
)

// UserLookup loads the actor snapshot for a resolved subject.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (*domain.User, error)
}

// Evaluator decides a single authorization request.
type Evaluator interface {
	Evaluate(actor *domain.User, action, resourceType string) (policy.Decision, error)
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is copied into audit records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Gate authenticates a bearer token and authorizes the resulting actor.
//
// Every failure leaves the gate as a *domain.AuthError of kind
// Unauthenticated or Forbidden. Policy evaluation errors become Forbidden.
type Gate struct {
	creds  ports.CredentialStore
	users  UserLookup
	engine Evaluator
	audit  ports.AuditSink
	log    zerolog.Logger
	now    func() time.Time
}

// NewGate builds a Gate. audit may be nil.
func NewGate(creds ports.CredentialStore, users UserLookup, engine Evaluator, audit ports.AuditSink, log zerolog.Logger) *Gate {
	return &Gate{
		creds:  creds,
		users:  users,
		engine: engine,
		audit:  audit,
		log:    log,
		now:    time.Now,
	}
}

// Authorize resolves bearerToken to an active user and checks that the user
// may perform action on resourceType. resourceType may be empty.
func (g *Gate) Authorize(ctx context.Context, action, resourceType, bearerToken string) (*domain.User, error) {
	user, err := g.Authenticate(ctx, bearerToken)
	if err != nil {
		var ae *domain.AuthError
		if errors.As(err, &ae) {
			ae.Action = action
		}
		return nil, err
	}

	decision, err := g.engine.Evaluate(user, action, resourceType)
	if err != nil {
		g.log.Error().Err(err).
			Int64("actor_id", user.ID).
			Str("action", action).
			Str("resource_type", resourceType).
			Msg("policy evaluation failed, denying")
		g.record(ctx, user, action, resourceType, domain.DecisionError, err.Error())
		return nil, &domain.AuthError{Kind: domain.Forbidden, Action: action, Cause: err}
	}

	if !decision.Allowed {
		g.log.Warn().
			Int64("actor_id", user.ID).
			Str("actor_email", user.Email).
			Str("action", action).
			Str("resource_type", resourceType).
			Str("reason", decision.Reason).
			Msg("authorization denied")
		g.record(ctx, user, action, resourceType, domain.DecisionDeny, decision.Reason)
		return nil, &domain.AuthError{Kind: domain.Forbidden, Action: action}
	}

	g.log.Debug().
		Int64("actor_id", user.ID).
		Str("action", action).
		Str("resource_type", resourceType).
		Str("reason", decision.Reason).
		Msg("authorization granted")
	return user, nil
}

// Authenticate resolves bearerToken to an active user without consulting the policy.
func (g *Gate) Authenticate(ctx context.Context, bearerToken string) (*domain.User, error) {
	if bearerToken == "" {
		return nil, unauthenticated(domain.ErrTokenInvalid)
	}

	subject, err := g.creds.ResolveToken(ctx, bearerToken)
	if err != nil {
		return nil, unauthenticated(err)
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return nil, unauthenticated(domain.ErrTokenInvalid)
	}

	user, err := g.users.UserByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			g.log.Error().Err(err).Int64("user_id", id).Msg("actor lookup failed")
		}
		return nil, unauthenticated(err)
	}
	if !user.IsActive {
		return nil, unauthenticated(domain.ErrInactiveUser)
	}
	return user, nil
}

func (g *Gate) record(ctx context.Context, user *domain.User, action, resourceType, decision, reason string) {
	if g.audit == nil {
		return
	}
	g.audit.Record(domain.AuthzEvent{
		ActorID:      user.ID,
		ActorEmail:   user.Email,
		Action:       action,
		ResourceType: resourceType,
		Decision:     decision,
		Reason:       reason,
		RequestID:    requestID(ctx),
		OccurredAt:   g.now().UTC(),
	})
}

func unauthenticated(cause error) error {
	return &domain.AuthError{Kind: domain.Unauthenticated, Cause: cause}
}
