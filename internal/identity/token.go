package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims of a session token. RegisteredClaims.ID is the
// jti used for revocation.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Revocations records signed-out tokens.
type Revocations interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenService issues and validates HS256 session tokens.
type TokenService struct {
	secret      []byte
	expiration  time.Duration
	revocations Revocations
	now         func() time.Time
}

// NewTokenService creates a token service. revocations may be nil, in which
// case sign-out cannot invalidate tokens.
func NewTokenService(secret string, expiration time.Duration, revocations Revocations) *TokenService {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &TokenService{
		secret:      []byte(secret),
		expiration:  expiration,
		revocations: revocations,
		now:         time.Now,
	}
}

// Issue signs a token for userID.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiration)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry without consulting revocations.
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty: %w", domain.ErrUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", domain.ErrUnauthenticated)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", domain.ErrUnauthenticated)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", domain.ErrUnauthenticated)
		default:
			return nil, fmt.Errorf("failed to parse token: %v: %w", err, domain.ErrUnauthenticated)
		}
	}
	if !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("token is not valid: %w", domain.ErrUnauthenticated)
	}
	return claims, nil
}

// Validate parses the token and rejects it if it was revoked.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if s.revocations == nil {
		return claims, nil
	}
	revoked, err := s.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, &domain.StorageError{Op: "select", Table: "revoked_tokens", Err: err}
	}
	if revoked {
		return nil, fmt.Errorf("token revoked: %w", domain.ErrUnauthenticated)
	}
	return claims, nil
}

// Revoke invalidates the token until it would have expired anyway.
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if s.revocations == nil || claims == nil {
		return nil
	}
	expiresAt := s.now().Add(s.expiration)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revocations.RevokeToken(ctx, claims.ID, expiresAt); err != nil {
		return &domain.StorageError{Op: "insert", Table: "revoked_tokens", Err: err}
	}
	return nil
}

// Expiration returns the lifetime of issued tokens.
func (s *TokenService) Expiration() time.Duration { return s.expiration }
