package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rewardkit/core"
)

// Provider resolves a caller-presented credential to a stable user identity.
// The engine never submits events on behalf of a user the credential does
// not identify.
type Provider interface {
	Resolve(ctx context.Context, token string) (core.UserID, error)
}

// StaticTokens maps opaque bearer tokens to user IDs. Intended for tests,
// demos, and service-to-service setups with provisioned credentials.
type StaticTokens map[string]core.UserID

func (s StaticTokens) Resolve(_ context.Context, token string) (core.UserID, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrUnauthenticated)
	}
	user, ok := s[token]
	if !ok {
		return "", fmt.Errorf("%w: unknown token", core.ErrUnauthenticated)
	}
	return user, nil
}

// JWT validates HS256-signed tokens whose subject claim carries the user ID.
type JWT struct {
	Secret []byte
	Issuer string // optional; enforced when non-empty
}

func (j JWT) Resolve(_ context.Context, token string) (core.UserID, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrUnauthenticated)
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid or expired token", core.ErrUnauthenticated)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject claim", core.ErrUnauthenticated)
	}
	if j.Issuer != "" && claims.Issuer != j.Issuer {
		return "", fmt.Errorf("%w: wrong issuer", core.ErrUnauthenticated)
	}
	return core.UserID(claims.Subject), nil
}

// Sign issues a token for the given user, mainly for tests and tooling.
func (j JWT) Sign(user core.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(user),
		Issuer:    j.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
}
