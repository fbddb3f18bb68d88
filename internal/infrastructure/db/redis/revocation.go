package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records revoked token ids until the tokens expire.
// Key format: <prefix>:revoked:<jti>
type RevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRevocationList creates a RevocationList wrapping the given Redis client.
// An empty prefix selects "docqa".
func NewRevocationList(client *redis.Client, prefix string) *RevocationList {
	if prefix == "" {
		prefix = defaultIndexPrefix
	}
	return &RevocationList{client: client, prefix: prefix, now: time.Now}
}

// IsRevoked reports whether the token id has been revoked.
func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

// Revoke records the token id until `until`. Already expired tokens are ignored.
func (l *RevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *RevocationList) key(tokenID string) string {
	return l.prefix + ":revoked:" + tokenID
}
