// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues and validates signed, stateless session tokens and
// manages the cookie that carries them.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("session secret is required in production")
	ErrMalformed     = errors.New("malformed session token")
	ErrSignature     = errors.New("invalid session token signature")
	ErrExpired       = errors.New("session token has expired")
)

// Status classifies the token presented with a request.
type Status int

const (
	StatusValid Status = iota
	StatusNoToken
	StatusInvalid
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNoToken:
		return "no_token"
	case StatusInvalid:
		return "invalid"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Claims is the token payload. The account id travels as "id".
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"id"`
}

// Manager signs tokens and builds session cookies.
type Manager struct {
	secret     []byte
	cookieName string
	maxAge     int
	secure     bool
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager. In production an empty secret is an
// error; elsewhere a random one is generated for the lifetime of the process.
func NewManager(cfg *config.SessionConfig, production bool, opts ...Option) (*Manager, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		if production {
			return nil, ErrMissingSecret
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		secret = []byte(hex.EncodeToString(key))
		slog.Warn("session secret not configured, generated a random one; sessions will not survive restarts")
	}

	m := &Manager{
		secret:     secret,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     production,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Lifetime is how long an issued token stays valid.
func (m *Manager) Lifetime() time.Duration {
	return time.Duration(m.maxAge) * time.Second
}

// Issue signs a new token for accountID and returns it with its expiry.
func (m *Manager) Issue(accountID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.Lifetime())

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: accountID,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks the token signature and expiry and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil && token.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignature
	default:
		return nil, ErrMalformed
	}

	if claims.AccountID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Check validates a raw token and classifies the result.
func (m *Manager) Check(tokenString string) (*Claims, Status) {
	if tokenString == "" {
		return nil, StatusNoToken
	}
	claims, err := m.Validate(tokenString)
	switch {
	case err == nil:
		return claims, StatusValid
	case errors.Is(err, ErrExpired):
		return nil, StatusExpired
	default:
		return nil, StatusInvalid
	}
}

// TokenFromRequest returns the session token from the cookie, falling back to
// an "Authorization: Bearer" header.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Cookie builds the cookie that carries token.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	}
}

// Clear returns a cookie that removes the session cookie.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	}
}

// Cross-site cookies need SameSite=None, which browsers only accept when Secure.
func (m *Manager) sameSite() http.SameSite {
	if m.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteStrictMode
}
