/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

func signToken(t *testing.T, email string, exp time.Time) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte("test-secret-test-secret-test-sec")},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		t.Fatalf("NewSigner() error: %v", err)
	}
	claims := map[string]interface{}{
		"email": email,
		"exp":   exp.Unix(),
		"iat":   time.Now().Unix(),
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	return raw
}

func TestLogin(t *testing.T) {
	exp := time.Now().Add(7 * 24 * time.Hour)
	var gotBody LoginRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": signToken(t, gotBody.Email, exp),
			"token_type":   "bearer",
		})
	}))
	defer server.Close()

	core, err := dialersdk.NewClient("bootstrap", &dialersdk.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	token, err := New(core, nil).Login(context.Background(), "agent@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if gotBody.Email != "agent@example.com" {
		t.Errorf("request email = %q", gotBody.Email)
	}
	if token.Email != "agent@example.com" {
		t.Errorf("token email = %q", token.Email)
	}
	if token.ExpiresAt.Unix() != exp.Unix() {
		t.Errorf("ExpiresAt = %v, want %v", token.ExpiresAt, exp)
	}
	if !token.Valid() {
		t.Error("fresh token reports invalid")
	}
	if token.ExpiresWithin(time.Hour) {
		t.Error("week-long token reports expiring within the hour")
	}
	if !token.ExpiresWithin(8 * 24 * time.Hour) {
		t.Error("token does not report expiring within 8 days")
	}

	// The core client now authenticates as the logged-in user.
	if got := core.GetAccessToken(); got != token.AccessToken {
		t.Error("core access token not updated after login")
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	core, err := dialersdk.NewClient("bootstrap", &dialersdk.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	_, err = New(core, nil).Login(context.Background(), "agent@example.com", "wrong")
	if err == nil {
		t.Fatal("Login() succeeded with rejected credentials")
	}
	if !dialersdk.IsAuthError(err) {
		t.Errorf("error %v is not an auth error", err)
	}
	if core.GetAccessToken() != "bootstrap" {
		t.Error("access token replaced after failed login")
	}
}

func TestLoginValidation(t *testing.T) {
	core, err := dialersdk.NewClient("bootstrap", nil)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	c := New(core, nil)
	if _, err := c.Login(context.Background(), "", "pw"); err == nil {
		t.Error("Login() with empty email succeeded")
	}
	if _, err := c.Login(context.Background(), "a@b.c", ""); err == nil {
		t.Error("Login() with empty password succeeded")
	}
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(-time.Hour)
	raw := signToken(t, "agent@example.com", exp)

	info, err := InspectToken(raw)
	if err != nil {
		t.Fatalf("InspectToken() error: %v", err)
	}
	if info.Valid() {
		t.Error("expired token reports valid")
	}

	if _, err := InspectToken("not-a-jwt"); err == nil {
		t.Error("InspectToken() accepted garbage")
	}
}
