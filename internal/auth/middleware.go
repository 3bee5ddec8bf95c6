package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/config"
	"github.com/davgate/davgate/internal/directory"
)

type Principal struct {
	UserID  string
	UserDN  string
	Display string
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

type Chain struct {
	cfg    *config.Config
	dir    directory.Directory
	logger zerolog.Logger
	basic  *BasicAuth
	bearer *BearerAuth
}

func NewChain(cfg *config.Config, dir directory.Directory, logger zerolog.Logger) *Chain {
	c := &Chain{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
	}
	if cfg.Auth.EnableBasic {
		c.basic = &BasicAuth{Users: cfg.Auth.StaticUsers, Dir: dir, Logger: logger}
	}
	if cfg.Auth.EnableBearer {
		c.bearer = NewBearerAuth(cfg, dir, logger)
	}
	return c
}

// Enabled reports whether any authentication scheme is configured. When
// false, requests pass through anonymously.
func (c *Chain) Enabled() bool { return c.basic != nil || c.bearer != nil }

func (c *Chain) BasicEnabled() bool  { return c.basic != nil }
func (c *Chain) BearerEnabled() bool { return c.bearer != nil }

// Authenticate picks the scheme from the Authorization header.
func (c *Chain) Authenticate(ctx context.Context, header string) (*Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return nil, errors.New("no credentials")
	}
	switch strings.ToLower(parts[0]) {
	case "basic":
		if c.basic != nil {
			return c.basic.Authenticate(ctx, header)
		}
	case "bearer":
		if c.bearer != nil {
			return c.bearer.Authenticate(ctx, strings.TrimSpace(parts[1]))
		}
	}
	return nil, errors.New("no acceptable credentials")
}
