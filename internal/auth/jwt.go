// Package auth issues and validates the bearer tokens used inside the fleet.
// Two kinds exist: end-user tokens minted by the auth service (validated here,
// never issued), and system tokens minted by async producers for recipient
// resolution calls that do not run on behalf of any user.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserIDKey stores the authenticated user id in a request context.
const UserIDKey contextKey = "user_id"

// SystemSubject is the subject claim carried by system-issued tokens.
const SystemSubject = "system"

// Service signs and verifies HS256 tokens with a fleet-shared secret.
type Service struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewService creates a token service.
func NewService(secret, issuer string, tokenTTL time.Duration) *Service {
	return &Service{secret: []byte(secret), issuer: issuer, tokenTTL: tokenTTL}
}

// SystemToken mints a short-lived token identifying the calling service
// itself. Producers use it for cross-service recipient lookups.
func (s *Service) SystemToken() (string, error) {
	return s.TokenFor(SystemSubject)
}

// TokenFor mints a short-lived token for an arbitrary subject. Used by
// tooling; the services themselves only ever mint system tokens.
func (s *Service) TokenFor(subject string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns its subject: a user id, or
// SystemSubject for fleet-internal calls.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	if iss, ok := claims["iss"].(string); !ok || iss != s.issuer {
		return "", fmt.Errorf("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return sub, nil
}

// Middleware validates the Authorization header and stores the subject in the
// request context. Health and metrics paths are left open.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		subject, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated subject from a request context.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
