package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/cache"
	"github.com/davgate/davgate/internal/config"
	"github.com/davgate/davgate/internal/directory"
)

type BearerAuth struct {
	cfg    *config.Config
	Dir    directory.Directory
	Logger zerolog.Logger

	ksMu   sync.Mutex
	keyset jwk.Set
	ksAt   time.Time
	ksTTL  time.Duration

	verCache *cache.Cache[string, *Principal]
}

func NewBearerAuth(cfg *config.Config, dir directory.Directory, logger zerolog.Logger) *BearerAuth {
	return &BearerAuth{
		cfg:      cfg,
		Dir:      dir,
		Logger:   logger,
		ksTTL:    10 * time.Minute,
		verCache: cache.New[string, *Principal](2 * time.Minute),
	}
}

func (b *BearerAuth) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if p, ok := b.verCache.Get(token); ok && p != nil {
		return p, nil
	}
	if b.cfg.Auth.JWKSURL == "" {
		return nil, errors.New("no jwt validation configured")
	}

	set, err := b.keys(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(true))
	if err != nil {
		return nil, err
	}
	if iss := tok.Issuer(); b.cfg.Auth.Issuer != "" && iss != b.cfg.Auth.Issuer {
		return nil, errors.New("issuer mismatch")
	}
	if aud := tok.Audience(); len(aud) > 0 && b.cfg.Auth.Audience != "" {
		found := false
		for _, a := range aud {
			if a == b.cfg.Auth.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("audience mismatch")
		}
	}
	sub := tok.Subject()
	if sub == "" {
		return nil, errors.New("no sub")
	}

	p := &Principal{UserID: sub, Display: sub}
	if b.Dir != nil {
		user, err := b.Dir.LookupUserByAttr(ctx, b.cfg.LDAP.TokenUserAttr, sub)
		if err != nil {
			return nil, err
		}
		p = &Principal{UserID: user.UID, UserDN: user.DN, Display: user.DisplayName}
	}
	b.verCache.SetTTL(token, p)
	return p, nil
}

// keys returns the JWKS, refetching under the mutex once the TTL lapses.
func (b *BearerAuth) keys(ctx context.Context) (jwk.Set, error) {
	b.ksMu.Lock()
	defer b.ksMu.Unlock()
	if b.keyset != nil && time.Since(b.ksAt) <= b.ksTTL {
		return b.keyset, nil
	}
	set, err := jwk.Fetch(ctx, b.cfg.Auth.JWKSURL)
	if err != nil {
		return nil, err
	}
	b.keyset = set
	b.ksAt = time.Now()
	return set, nil
}
