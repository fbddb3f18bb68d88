package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const defaultTokenTTL = 24 * time.Hour

// Store implements ports.CredentialStore with bcrypt password hashes and
// HS256-signed JWTs. The subject claim carries the user id.
type Store struct {
	secret  []byte
	ttl     time.Duration
	cost    int
	revoker ports.TokenRevoker
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithRevoker enables token revocation checks.
func WithRevoker(r ports.TokenRevoker) Option {
	return func(s *Store) { s.revoker = r }
}

// WithCost overrides the bcrypt cost.
func WithCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store signing with secret. A non-positive ttl selects 24h.
func NewStore(secret string, ttl time.Duration, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, errors.New("credential: empty signing secret")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	s := &Store{
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Store) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *Store) IssueToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("issue token: empty subject")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Store) ResolveToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", domain.ErrTokenInvalid
	}

	if s.revoker != nil {
		jti, _ := claims["jti"].(string)
		revoked, err := s.revoker.IsRevoked(ctx, jti)
		if err != nil {
			// Unknown revocation state is treated as revoked.
			return "", fmt.Errorf("%w: revocation check: %v", domain.ErrTokenInvalid, err)
		}
		if revoked {
			return "", domain.ErrTokenInvalid
		}
	}
	return sub, nil
}

// Revoke adds the token id to the revocation list until the token expires.
// Without a revoker it only validates the token.
func (s *Store) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if s.revoker == nil {
		return nil
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return domain.ErrTokenInvalid
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return domain.ErrTokenInvalid
	}
	return s.revoker.Revoke(ctx, jti, exp.Time)
}

func (s *Store) parse(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrTokenExpired
	case err != nil || !tkn.Valid:
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
