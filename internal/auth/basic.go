package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/directory"
)

type BasicAuth struct {
	// Users are static credentials checked before the directory.
	Users  map[string]string
	Dir    directory.Directory
	Logger zerolog.Logger
}

func (b *BasicAuth) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if header == "" {
		return nil, errors.New("no auth")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "basic" {
		return nil, errors.New("not basic")
	}
	dec, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	creds := strings.SplitN(string(dec), ":", 2)
	if len(creds) != 2 {
		return nil, errors.New("malformed basic")
	}
	username, password := creds[0], creds[1]

	if want, ok := b.Users[username]; ok {
		if subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1 {
			return &Principal{UserID: username, Display: username}, nil
		}
		return nil, errors.New("bad credentials")
	}

	if b.Dir == nil {
		return nil, errors.New("bad credentials")
	}
	user, err := b.Dir.BindUser(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:  user.UID,
		UserDN:  user.DN,
		Display: user.DisplayName,
	}, nil
}
