package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/config"
	"github.com/davgate/davgate/internal/dav/common"
)

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func gateRequest(method, authz string) *common.Request {
	req := &common.Request{Method: method, Header: http.Header{}}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func TestGateDisabled(t *testing.T) {
	cfg := &config.Config{}
	if hook := Gate(NewChain(cfg, nil, zerolog.Nop())); hook != nil {
		t.Fatal("gate active without configured schemes")
	}
	if Gate(nil) != nil {
		t.Fatal("gate active for nil chain")
	}
}

func TestGateRequiresCredentials(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBasic: true,
		StaticUsers: map[string]string{"alice": "secret"},
	}}
	hook := Gate(NewChain(cfg, nil, zerolog.Nop()))
	if hook == nil {
		t.Fatal("gate missing with basic auth enabled")
	}

	resp, err := hook(context.Background(), gateRequest("PUT", ""))
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if resp == nil || resp.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous PUT passed: %+v", resp)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != `Basic realm="davgate"` {
		t.Fatalf("WWW-Authenticate = %q", got)
	}

	resp, err = hook(context.Background(), gateRequest("PUT", basicHeader("alice", "wrong")))
	if err != nil || resp == nil || resp.Status != http.StatusUnauthorized {
		t.Fatalf("bad password passed: %+v, %v", resp, err)
	}

	resp, err = hook(context.Background(), gateRequest("PUT", basicHeader("alice", "secret")))
	if err != nil || resp != nil {
		t.Fatalf("valid credentials rejected: %+v, %v", resp, err)
	}
}

func TestGateOptionsAnonymous(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBasic: true,
		StaticUsers: map[string]string{"alice": "secret"},
	}}
	hook := Gate(NewChain(cfg, nil, zerolog.Nop()))

	resp, err := hook(context.Background(), gateRequest("OPTIONS", ""))
	if err != nil || resp != nil {
		t.Fatalf("OPTIONS blocked: %+v, %v", resp, err)
	}
}

func TestGateTrustsContextPrincipal(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBasic: true,
		StaticUsers: map[string]string{"alice": "secret"},
	}}
	hook := Gate(NewChain(cfg, nil, zerolog.Nop()))

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "alice"})
	resp, err := hook(ctx, gateRequest("DELETE", ""))
	if err != nil || resp != nil {
		t.Fatalf("authenticated context blocked: %+v, %v", resp, err)
	}
}

func TestGateBearerChallenge(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{
		EnableBearer: true,
		JWKSURL:      "http://127.0.0.1:0/jwks.json",
	}}
	hook := Gate(NewChain(cfg, nil, zerolog.Nop()))

	resp, err := hook(context.Background(), gateRequest("GET", ""))
	if err != nil || resp == nil || resp.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous GET passed: %+v, %v", resp, err)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
}
