package session

import (
	"strings"
	"testing"
	"time"

	"handoff_backend/platform/apperr"

	"github.com/golang-jwt/jwt/v5"
)

type stubConfig struct {
	serverURL string
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func (c stubConfig) GetSessionServerURL() string     { return c.serverURL }
func (c stubConfig) GetSessionAPIKey() string        { return c.apiKey }
func (c stubConfig) GetSessionAPISecret() string     { return c.apiSecret }
func (c stubConfig) GetCredentialTTL() time.Duration { return c.ttl }

func TestMint_SignsScopedGrant(t *testing.T) {
	cfg := stubConfig{
		serverURL: "wss://session.example.com",
		apiKey:    "api-key",
		apiSecret: "api-secret",
		ttl:       30 * time.Minute,
	}
	issuer := New(cfg)
	issuedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issuedAt }

	identity := NewOperatorIdentity()
	cred, err := issuer.Mint(identity, "room-42")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if cred.Identity != identity {
		t.Fatalf("expected credential identity %q, got %q", identity, cred.Identity)
	}
	if cred.ServerURL != cfg.serverURL {
		t.Fatalf("expected server url %q, got %q", cfg.serverURL, cred.ServerURL)
	}
	if !cred.ExpiresAt.Equal(issuedAt.Add(cfg.ttl)) {
		t.Fatalf("expected expiry %v, got %v", issuedAt.Add(cfg.ttl), cred.ExpiresAt)
	}

	var claims grantClaims
	parsed, err := jwt.ParseWithClaims(cred.Token, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.apiSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return issuedAt }))
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("expected a valid token")
	}
	if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		t.Fatalf("expected HS256, got %s", parsed.Method.Alg())
	}

	if claims.Issuer != cfg.apiKey {
		t.Fatalf("expected issuer %q, got %q", cfg.apiKey, claims.Issuer)
	}
	if claims.Subject != identity {
		t.Fatalf("expected subject %q, got %q", identity, claims.Subject)
	}
	if claims.Video.Room != "room-42" {
		t.Fatalf("grant scoped to wrong room: %q", claims.Video.Room)
	}
	if !claims.Video.RoomJoin || !claims.Video.CanPublish || !claims.Video.CanSubscribe || !claims.Video.CanPublishData {
		t.Fatalf("expected full room capabilities, got %+v", claims.Video)
	}
	if !claims.ExpiresAt.Time.Equal(issuedAt.Add(cfg.ttl)) {
		t.Fatalf("expected exp %v, got %v", issuedAt.Add(cfg.ttl), claims.ExpiresAt.Time)
	}
}

func TestMint_UnconfiguredIsUnavailable(t *testing.T) {
	issuer := New(stubConfig{ttl: 30 * time.Minute})

	if issuer.Configured() {
		t.Fatal("issuer without credentials must not report configured")
	}

	_, err := issuer.Mint(NewOperatorIdentity(), "room-1")
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestNewOperatorIdentity_UniqueAndPrefixed(t *testing.T) {
	a := NewOperatorIdentity()
	b := NewOperatorIdentity()

	if !strings.HasPrefix(a, operatorIdentityPrefix) {
		t.Fatalf("identity %q missing operator prefix", a)
	}
	if a == b {
		t.Fatal("expected fresh identity per call")
	}
}

func TestMint_ParseWithClaims_Expiry(t *testing.T) {
	cfg := stubConfig{
		serverURL: "wss://session.example.com",
		apiKey:    "api-key",
		apiSecret: "api-secret",
		ttl:       time.Minute,
	}
	issuer := New(cfg)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	cred, err := issuer.Mint(NewOperatorIdentity(), "room-1")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	var claims grantClaims
	_, err = jwt.ParseWithClaims(cred.Token, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.apiSecret), nil
	})
	if err == nil {
		t.Fatal("expected verification of an expired token to fail")
	}
}
