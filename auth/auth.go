/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package auth logs in against the backend and manages the bearer token
// the rest of the SDK sends.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// LoginRequest is the body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is the bearer token issued by the backend, with the claims a
// client can read from it. The signature is the backend's to verify; the
// client only inspects expiry to know when to log in again.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Email       string    `json:"-"`
	IssuedAt    time.Time `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

// Valid reports whether the token exists and has not expired.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || time.Now().Before(t.ExpiresAt)
}

// ExpiresWithin reports whether the token expires inside d. Tokens
// without an exp claim never report true.
func (t *Token) ExpiresWithin(d time.Duration) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(d).After(t.ExpiresAt)
}

// Config holds the configuration for the Auth plugin.
type Config struct{}

// DefaultConfig returns the default configuration for the Auth plugin.
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the Auth API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Auth client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{core: core, config: config}
}

// Login exchanges credentials for a bearer token and installs it on the
// core client, so subsequent requests authenticate as this user.
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/auth/login", nil, &LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	var token Token
	if err := dialersdk.ParseResponse(resp, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no token")
	}

	// Claims are informational. A token we cannot parse still works as
	// an opaque bearer credential.
	if info, err := InspectToken(token.AccessToken); err == nil {
		token.Email = info.Email
		token.IssuedAt = info.IssuedAt
		token.ExpiresAt = info.ExpiresAt
	}

	c.core.SetAccessToken(token.AccessToken)
	return &token, nil
}

// InspectToken reads the claims of a backend JWT without verifying its
// signature. Verification is the backend's job; the client only needs
// the expiry and the subject email.
func InspectToken(raw string) (*Token, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256, jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	var claims struct {
		Email string           `json:"email"`
		Exp   *jwt.NumericDate `json:"exp"`
		Iat   *jwt.NumericDate `json:"iat"`
	}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("failed to read claims: %w", err)
	}

	token := &Token{AccessToken: raw, TokenType: "bearer", Email: claims.Email}
	if claims.Exp != nil {
		token.ExpiresAt = claims.Exp.Time()
	}
	if claims.Iat != nil {
		token.IssuedAt = claims.Iat.Time()
	}
	return token, nil
}
