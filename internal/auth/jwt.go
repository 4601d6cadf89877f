// Package auth implements the optional bearer-token middleware for the
// consumer API, grounded on the teacher's internal/auth package
// (JWTService built on github.com/golang-jwt/jwt/v5, HS256, RegisteredClaims).
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDisabled is returned by Validate when no secret is configured.
	ErrDisabled = errors.New("auth: disabled")
	// ErrInvalidToken is returned for any malformed, expired, or
	// wrong-signature token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims identifies the consumer presenting a token. Subject is the only
// field the orchestrator itself relies on.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and validates bearer tokens for the consumer API.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a Service. An empty secret disables auth entirely:
// Validate always returns ErrDisabled and Middleware becomes a no-op.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a secret is configured.
func (s *Service) Enabled() bool { return s != nil && len(s.secret) > 0 }

// Generate issues a signed token for subject.
func (s *Service) Generate(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	if s.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies token, returning its subject.
func (s *Service) Validate(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware rejects requests lacking a valid "Authorization: Bearer <jwt>"
// header. A disabled Service (nil secret) passes every request through
// unchanged.
func Middleware(s *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(header[len("bearer "):])
			if _, err := s.Validate(token); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
