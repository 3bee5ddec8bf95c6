package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/auth"
	"github.com/davgate/davgate/internal/config"
	"github.com/davgate/davgate/internal/dav"
	"github.com/davgate/davgate/internal/dav/caldav"
	"github.com/davgate/davgate/internal/dav/compat"
	"github.com/davgate/davgate/internal/dav/dialect"
	"github.com/davgate/davgate/internal/dav/ignore"
	"github.com/davgate/davgate/internal/directory"
	"github.com/davgate/davgate/internal/persist"
	"github.com/davgate/davgate/internal/persist/memory"
	"github.com/davgate/davgate/internal/persist/osfs"
	"github.com/davgate/davgate/internal/persist/pgfs"
	"github.com/davgate/davgate/internal/persist/sqlitefs"
	"github.com/davgate/davgate/internal/router"
)

type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	pa, closeStore, err := openStorage(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var dir directory.Directory
	if cfg.LDAP.URL != "" {
		ldapDir, err := directory.NewLDAPClient(cfg.LDAP, logger)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		dir = ldapDir
	}

	var matcher *ignore.Matcher
	if len(cfg.DAV.IgnorePatterns) > 0 {
		matcher = ignore.New(cfg.DAV.IgnorePatterns...)
	}
	var policy dialect.Policy
	if len(cfg.DAV.Dialects) > 0 {
		policy = dialect.FromNames(cfg.DAV.Dialects)
	}

	davh := dav.New(pa, logger, dav.Options{
		Ignore:  matcher,
		Dialect: policy,
		MaxBody: cfg.HTTP.MaxBodyBytes,
	})
	compat.Register(davh.Hooks())
	cal := caldav.New(pa, davh.State(), davh.Ignore(), logger)
	cal.Strict = cfg.DAV.StrictCalDAV
	cal.Register(davh)

	authn := auth.NewChain(cfg, dir, logger)
	davh.Authorize = auth.Gate(authn)
	mux := router.New(cfg, davh, authn, logger)

	srv := &Server{
		http: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
	cleanup := func() {
		closeStore()
		if dir != nil {
			dir.Close()
		}
	}
	logger.Info().Msgf("listening on %s (storage=%s)", cfg.HTTP.Addr, cfg.Storage.Type)
	return srv, cleanup, nil
}

func openStorage(cfg *config.Config, logger zerolog.Logger) (persist.Adapter, func(), error) {
	noop := func() {}
	switch cfg.Storage.Type {
	case "memory":
		return memory.New(), noop, nil
	case "os":
		pa, err := osfs.New(cfg.Storage.FileRoot)
		return pa, noop, err
	case "sqlite":
		pa, err := sqlitefs.New(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return pa, pa.Close, nil
	case "postgres":
		pa, err := pgfs.New(cfg.Storage.PostgresURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return pa, pa.Close, nil
	}
	return nil, nil, errors.New("unknown storage type: " + cfg.Storage.Type)
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
