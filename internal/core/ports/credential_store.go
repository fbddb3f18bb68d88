package ports

import (
	"context"
	"time"
)

// CredentialStore hashes secrets and issues and resolves bearer tokens.
type CredentialStore interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	// IssueToken signs a token for subject. ttl <= 0 selects the store default.
	IssueToken(subject string, ttl time.Duration) (string, error)
	// ResolveToken returns the subject claim, or domain.ErrTokenInvalid /
	// domain.ErrTokenExpired.
	ResolveToken(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// TokenRevoker keeps a list of revoked token ids until their expiry.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
