// Package auth adapts the host platform's authentication into the bearer
// token the extraction endpoint expects.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no credential is stored; the user must authenticate
	// before extraction can run.
	ErrNoToken = errors.New("no auth token available")
	// ErrTokenExpired means the stored JWT is past its exp claim; refusing
	// it locally saves a doomed round trip.
	ErrTokenExpired = errors.New("auth token expired")
)

// BearerProvider stores one bearer token. Invalidate is called by the
// extraction client on HTTP 401; SetToken is called after the user
// re-authenticates.
type BearerProvider struct {
	logger *slog.Logger

	mu    sync.Mutex
	token string
}

func NewBearerProvider(token string, logger *slog.Logger) *BearerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &BearerProvider{token: token, logger: logger}
}

// Token returns the stored credential. JWT-shaped tokens are pre-checked
// for expiry (signature verification stays with the endpoint).
func (p *BearerProvider) Token(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return "", ErrNoToken
	}
	if looksLikeJWT(p.token) {
		if err := checkExpiry(p.token); err != nil {
			return "", err
		}
	}
	return p.token, nil
}

// Invalidate drops the stored token. The next Token call fails until
// SetToken supplies a fresh credential.
func (p *BearerProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		p.logger.Warn("auth.token.invalidated")
	}
	p.token = ""
}

// SetToken stores a fresh credential.
func (p *BearerProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func checkExpiry(token string) error {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// not actually a JWT; let the endpoint judge it
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}
