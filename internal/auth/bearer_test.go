package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/config"
)

// newJWKSFixture returns a signing key and a server publishing its public
// half as a JWKS document.
func newJWKSFixture(t *testing.T) (jwk.Key, *httptest.Server) {
	t.Helper()
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk from raw: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, "k1"); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	pub, err := key.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("add key: %v", err)
	}
	doc, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signToken(t *testing.T, key jwk.Key, sub, iss string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(sub).
		Issuer(iss).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestBearerAuthenticate(t *testing.T) {
	key, jwks := newJWKSFixture(t)
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBearer: true,
		JWKSURL:      jwks.URL,
		Issuer:       "https://idp.test",
	}}
	b := NewBearerAuth(cfg, nil, zerolog.Nop())

	p, err := b.Authenticate(context.Background(), signToken(t, key, "alice", "https://idp.test"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != "alice" {
		t.Fatalf("principal = %+v", p)
	}

	if _, err := b.Authenticate(context.Background(), signToken(t, key, "alice", "https://other.test")); err == nil {
		t.Fatal("issuer mismatch accepted")
	}
	if _, err := b.Authenticate(context.Background(), "not.a.token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestBearerConcurrentKeysetRefresh(t *testing.T) {
	key, jwks := newJWKSFixture(t)
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBearer: true,
		JWKSURL:      jwks.URL,
	}}
	b := NewBearerAuth(cfg, nil, zerolog.Nop())
	b.ksTTL = 0 // refetch on every call

	const workers = 8
	tokens := make([]string, workers)
	for i := range tokens {
		tokens[i] = signToken(t, key, "alice", "")
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if _, err := b.Authenticate(context.Background(), tok); err != nil {
				errs <- err
			}
		}(tokens[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Authenticate: %v", err)
	}
}
