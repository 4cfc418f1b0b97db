package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/reagent-dev/reagent/pkg/auth"
)

const testSecret = "test-secret-0123456789"

func signHS256(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func request(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestHS256Valid(t *testing.T) {
	a := New(Config{Secret: testSecret, Issuer: "https://auth.example.com"})

	token := signHS256(t, jwtlib.MapClaims{
		"sub":       "alice",
		"iss":       "https://auth.example.com",
		"tenant_id": "acme",
		"scope":     "runs:read runs:write",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), request(token))
	if result.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("subject = %q", result.Identity.Subject)
	}
	if result.Identity.TenantID() != "acme" {
		t.Errorf("tenant = %q", result.Identity.TenantID())
	}
	if len(result.Identity.Scopes) != 2 || result.Identity.Scopes[0] != "runs:read" {
		t.Errorf("scopes = %v", result.Identity.Scopes)
	}
}

func TestHS256WrongSecret(t *testing.T) {
	a := New(Config{Secret: "a-different-secret"})

	token := signHS256(t, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestHS256Expired(t *testing.T) {
	a := New(Config{Secret: testSecret})

	token := signHS256(t, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestHS256WrongIssuer(t *testing.T) {
	a := New(Config{Secret: testSecret, Issuer: "https://auth.example.com"})

	token := signHS256(t, jwtlib.MapClaims{
		"sub": "alice",
		"iss": "https://evil.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestHS256WrongAudience(t *testing.T) {
	a := New(Config{Secret: testSecret, Audience: "reagent"})

	token := signHS256(t, jwtlib.MapClaims{
		"sub": "alice",
		"aud": "some-other-service",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestMissingSubjectClaim(t *testing.T) {
	a := New(Config{Secret: testSecret})

	token := signHS256(t, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestCustomClaims(t *testing.T) {
	a := New(Config{
		Secret:      testSecret,
		UserClaim:   "email",
		TenantClaim: "org",
	})

	token := signHS256(t, jwtlib.MapClaims{
		"email": "alice@example.com",
		"org":   "acme",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), request(token))
	if result.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice@example.com" {
		t.Errorf("subject = %q", result.Identity.Subject)
	}
	if result.Identity.TenantID() != "acme" {
		t.Errorf("tenant = %q", result.Identity.TenantID())
	}
}

func TestScopesAsArray(t *testing.T) {
	a := New(Config{Secret: testSecret})

	token := signHS256(t, jwtlib.MapClaims{
		"sub":   "alice",
		"scope": []string{"read", "write"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), request(token))
	if result.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", result.Decision, result.Err)
	}
	if len(result.Identity.Scopes) != 2 || result.Identity.Scopes[1] != "write" {
		t.Errorf("scopes = %v", result.Identity.Scopes)
	}
}

func TestNoHeaderAbstains(t *testing.T) {
	a := New(Config{Secret: testSecret})
	if result := a.Authenticate(context.Background(), request("")); result.Decision != auth.Abstain {
		t.Errorf("decision = %v, want Abstain", result.Decision)
	}
}

func TestGarbageTokenIsNo(t *testing.T) {
	a := New(Config{Secret: testSecret})
	if result := a.Authenticate(context.Background(), request("not.a.jwt")); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

// JWKS mode: serve a generated RSA key from a fake JWKS endpoint and
// validate an RS256-signed token against it.

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(doc)
	}))
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestJWKSValid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	srv := jwksServer(t, key, "key-1")
	defer srv.Close()

	a := New(Config{JWKSURL: srv.URL})

	token := signRS256(t, key, "key-1", jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), request(token))
	if result.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("subject = %q", result.Identity.Subject)
	}
}

func TestJWKSUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	srv := jwksServer(t, key, "key-1")
	defer srv.Close()

	a := New(Config{JWKSURL: srv.URL})

	token := signRS256(t, key, "key-unknown", jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}

func TestJWKSRejectsHS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	srv := jwksServer(t, key, "key-1")
	defer srv.Close()

	a := New(Config{JWKSURL: srv.URL})

	// An HS256 token must not pass when RSA keys are expected.
	token := signHS256(t, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), request(token)); result.Decision != auth.No {
		t.Errorf("decision = %v, want No", result.Decision)
	}
}
