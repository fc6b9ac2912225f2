// Package rpc implements the sandbox worker's HTTP surface: the host
// dispatcher calls into a worker subprocess's /execute, /register_agent,
// and /health routes, authenticated by a per-run bearer token.
package rpc

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// MintToken signs a short-lived HS256 bearer token for runID, using the
// run's secret itself as the HMAC key, so every request to the worker carries
// proof it came from the run that spawned it.
func MintToken(runID string, secret []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	tok, err := jwt.NewBuilder().
		Subject(runID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("rpc: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", fmt.Errorf("rpc: sign token: %w", err)
	}
	return string(signed), nil
}

// VerifyToken validates tokenString against secret and returns its subject
// (the run id), rejecting expired or malformed tokens.
func VerifyToken(tokenString string, secret []byte) (string, error) {
	tok, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, secret), jwt.WithValidate(true))
	if err != nil {
		return "", fmt.Errorf("rpc: verify token: %w", err)
	}
	return tok.Subject(), nil
}
