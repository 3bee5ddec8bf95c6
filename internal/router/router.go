// Package router fronts the DAV engine with authentication, request logging,
// and the discovery endpoints.
package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/auth"
	"github.com/davgate/davgate/internal/config"
	"github.com/davgate/davgate/internal/dav"
)

type Router struct {
	cfg      *config.Config
	handlers *dav.Handlers
	auth     *auth.Chain
	logger   zerolog.Logger
}

func New(cfg *config.Config, h *dav.Handlers, authn *auth.Chain, logger zerolog.Logger) http.Handler {
	r := &Router{
		cfg:      cfg,
		handlers: h,
		auth:     authn,
		logger:   logger,
	}
	return r.setupRoutes()
}

func (r *Router) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/caldav", r.handleWellKnown)
	mux.HandleFunc("/healthz", r.handleHealth)

	base := r.basePath()
	davHandler := http.Handler(http.HandlerFunc(r.handleDAVRequest))
	if base != "/" {
		mux.Handle(base, http.StripPrefix(strings.TrimSuffix(base, "/"), davHandler))
		mux.Handle(strings.TrimSuffix(base, "/"), http.StripPrefix(strings.TrimSuffix(base, "/"), davHandler))
	} else {
		mux.Handle("/", davHandler)
	}
	return mux
}

func (r *Router) basePath() string {
	base := r.cfg.HTTP.BasePath
	if base == "" || base[0] != '/' {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func (r *Router) handleWellKnown(w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, r.basePath(), http.StatusPermanentRedirect)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleDAVRequest(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}

	// OPTIONS stays public for capability discovery.
	if r.auth.Enabled() && req.Method != http.MethodOptions {
		p, err := r.auth.Authenticate(req.Context(), req.Header.Get("Authorization"))
		if err != nil || p == nil {
			r.logger.Debug().Err(err).Str("ip", realIP(req)).Msg("authentication failed")
			if r.auth.BasicEnabled() {
				rec.Header().Set("WWW-Authenticate", `Basic realm="davgate"`)
			} else {
				rec.Header().Set("WWW-Authenticate", "Bearer")
			}
			http.Error(rec, "unauthorized", http.StatusUnauthorized)
			r.logRequest(req, rec, start)
			return
		}
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}

	r.handlers.ServeHTTP(rec, req)
	r.logRequest(req, rec, start)
}

func (r *Router) logRequest(req *http.Request, rec *statusRecorder, start time.Time) {
	r.logger.Info().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("ip", realIP(req)).
		Int("status", statusOrDefault(rec.status)).
		Int("bytes", rec.bytes).
		Dur("duration", time.Since(start)).
		Msg("request")
}
