// Package dav is the method engine: it parses the request once, walks it
// through the guard pipeline (auth, ignore, ACL, lock and etag
// preconditions), dispatches to the method handler, and lets hooks shape the
// final response.
package dav

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/dialect"
	"github.com/davgate/davgate/internal/dav/hooks"
	"github.com/davgate/davgate/internal/dav/ignore"
	"github.com/davgate/davgate/internal/dav/state"
	"github.com/davgate/davgate/internal/persist"
	"github.com/davgate/davgate/internal/persist/readcache"
)

type methodFunc func(ctx context.Context, req *common.Request) *common.Response

type Handlers struct {
	pa      persist.Adapter
	state   *state.Store
	ignore  *ignore.Matcher
	hooks   *hooks.Registry
	dialect dialect.Policy
	logger  zerolog.Logger
	maxBody int64

	// Authorize runs before everything else; a response from it ends the
	// request (401/403).
	Authorize common.BeforeHook

	methods map[string]methodFunc
}

type Options struct {
	Ignore  *ignore.Matcher
	Dialect dialect.Policy
	MaxBody int64
}

func New(pa persist.Adapter, logger zerolog.Logger, opts Options) *Handlers {
	if opts.Ignore == nil {
		opts.Ignore = ignore.New()
	}
	if opts.Dialect == nil {
		opts.Dialect = dialect.Default()
	}
	h := &Handlers{
		pa:      pa,
		state:   state.New(pa, logger),
		ignore:  opts.Ignore,
		hooks:   hooks.NewRegistry(logger),
		dialect: opts.Dialect,
		logger:  logger,
		maxBody: opts.MaxBody,
		methods: make(map[string]methodFunc),
	}
	h.methods["OPTIONS"] = h.handleOptions
	h.methods["GET"] = h.handleGet
	h.methods["HEAD"] = h.handleGet
	h.methods["PUT"] = h.handlePut
	h.methods["DELETE"] = h.handleDelete
	h.methods["MKCOL"] = h.handleMkcol
	h.methods["MOVE"] = h.handleMoveCopy
	h.methods["COPY"] = h.handleMoveCopy
	h.methods["BIND"] = h.handleBind
	h.methods["UNBIND"] = h.handleUnbind
	h.methods["REBIND"] = h.handleRebind
	h.methods["LOCK"] = h.handleLock
	h.methods["UNLOCK"] = h.handleUnlock
	h.methods["PROPFIND"] = h.handlePropfind
	h.methods["PROPPATCH"] = h.handleProppatch
	h.methods["ORDERPATCH"] = h.handleOrderpatch
	h.methods["SEARCH"] = h.handleSearch
	h.methods["REPORT"] = h.handleReport
	return h
}

// Hooks exposes the registry so extension layers can attach themselves.
func (h *Handlers) Hooks() *hooks.Registry { return h.hooks }

// State exposes the sidecar store for extension layers.
func (h *Handlers) State() *state.Store { return h.state }

// Ignore exposes the active ignore matcher.
func (h *Handlers) Ignore() *ignore.Matcher { return h.ignore }

// RegisterMethod installs or replaces a method handler.
func (h *Handlers) RegisterMethod(method string, fn func(ctx context.Context, req *common.Request) *common.Response) {
	h.methods[strings.ToUpper(method)] = fn
}

type adapterKey struct{}

// adapter returns the request-scoped cached adapter when one is attached,
// else the raw backend.
func (h *Handlers) adapter(ctx context.Context) persist.Adapter {
	if pa, ok := ctx.Value(adapterKey{}).(persist.Adapter); ok {
		return pa
	}
	return h.pa
}

func (h *Handlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), adapterKey{}, readcache.Wrap(h.pa))

	var body []byte
	if r.Body != nil {
		limit := h.maxBody
		if limit <= 0 {
			limit = 64 << 20
		}
		b, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			writeResponse(w, common.TextResponse(http.StatusBadRequest, "unreadable body"))
			return
		}
		if int64(len(b)) > limit {
			writeResponse(w, common.TextResponse(http.StatusRequestEntityTooLarge, "body too large"))
			return
		}
		body = b
	}

	req := &common.Request{
		Method:    strings.ToUpper(r.Method),
		Parts:     common.SplitPath(r.URL.Path),
		Header:    r.Header,
		Body:      body,
		UserAgent: r.UserAgent(),
	}

	resp := h.handle(ctx, req)
	if resp == nil {
		resp = common.NewResponse(http.StatusInternalServerError)
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *common.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func (h *Handlers) handle(ctx context.Context, req *common.Request) *common.Response {
	if h.Authorize != nil {
		resp, err := h.Authorize(ctx, req)
		if err != nil {
			h.logger.Warn().Err(err).Msg("authorize hook failed")
			return h.finish(ctx, req, common.NewResponse(http.StatusInternalServerError))
		}
		if resp != nil {
			return h.finish(ctx, req, resp)
		}
	}

	if h.ignore.Match(req.Parts) {
		return h.finish(ctx, req, common.TextResponse(http.StatusNotFound, "not found"))
	}

	if !h.aclAllows(ctx, req) {
		return h.finish(ctx, req, common.TextResponse(http.StatusForbidden, "forbidden"))
	}

	if resp := h.checkPreconditions(ctx, req); resp != nil {
		return h.finish(ctx, req, resp)
	}

	if resp := h.hooks.RunBefore(ctx, req); resp != nil {
		return h.finish(ctx, req, resp)
	}

	fn, ok := h.methods[req.Method]
	if !ok {
		return h.finish(ctx, req, common.TextResponse(http.StatusMethodNotAllowed, "method not allowed"))
	}
	return h.finish(ctx, req, fn(ctx, req))
}

// checkPreconditions enforces lock and etag conditions on mutating methods.
func (h *Handlers) checkPreconditions(ctx context.Context, req *common.Request) *common.Response {
	switch req.Method {
	case "PUT", "DELETE", "MOVE", "MKCOL", "UNBIND", "REBIND", "ORDERPATCH":
		if !h.requireLockOk(ctx, req.Parts, req.Header) {
			return common.TextResponse(http.StatusLocked, "locked")
		}
		if !h.etagMatchesIfHeader(ctx, req.Parts, req.Header) {
			return common.TextResponse(http.StatusPreconditionFailed, "precondition failed")
		}
	case "PROPPATCH":
		ok := h.dialect.EnsureLockOkForProppatch(req, func() bool {
			return h.requireLockOk(ctx, req.Parts, req.Header)
		})
		if !ok {
			return common.TextResponse(http.StatusLocked, "locked")
		}
	case "COPY", "BIND":
		// Source is read-only; the destination lock is checked in the handler.
		if !h.etagMatchesIfHeader(ctx, req.Parts, req.Header) {
			return common.TextResponse(http.StatusPreconditionFailed, "precondition failed")
		}
	}
	return nil
}

// aclAllows walks root to target collecting Z:acl-deny marks; any deny on the
// needed class wins.
func (h *Handlers) aclAllows(ctx context.Context, req *common.Request) bool {
	class := "write"
	switch req.Method {
	case "GET", "HEAD", "PROPFIND":
		class = "read"
	}
	for i := 0; i <= len(req.Parts); i++ {
		props := h.state.GetProps(ctx, req.Parts[:i])
		if props["Z:acl-deny-"+req.Method] == "true" {
			return false
		}
		if csv, ok := props["Z:acl-deny"]; ok {
			for _, item := range strings.Split(csv, ",") {
				if strings.TrimSpace(item) == class {
					return false
				}
			}
		}
	}
	return true
}

var allowedMethods = []string{
	"OPTIONS", "GET", "HEAD", "PUT", "DELETE", "MKCOL", "COPY", "MOVE",
	"BIND", "UNBIND", "REBIND", "LOCK", "UNLOCK",
	"PROPFIND", "PROPPATCH", "ORDERPATCH", "SEARCH", "REPORT",
}

// finish stamps the protocol headers and lets after-hooks reshape the
// response.
func (h *Handlers) finish(ctx context.Context, req *common.Request, resp *common.Response) *common.Response {
	if resp == nil {
		resp = common.NewResponse(http.StatusInternalServerError)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Header.Get("DAV") == "" {
		resp.Header.Set("DAV", "1, 2")
	}
	if resp.Header.Get("MS-Author-Via") == "" {
		resp.Header.Set("MS-Author-Via", "DAV")
	}
	if resp.Header.Get("Allow") == "" {
		methods := append([]string(nil), allowedMethods...)
		for m := range h.methods {
			found := false
			for _, known := range methods {
				if known == m {
					found = true
					break
				}
			}
			if !found {
				methods = append(methods, m)
			}
		}
		sort.Strings(methods)
		resp.Header.Set("Allow", strings.Join(methods, ", "))
	}
	return h.hooks.RunAfter(ctx, req, resp)
}

func (h *Handlers) handleOptions(_ context.Context, _ *common.Request) *common.Response {
	return common.NewResponse(http.StatusOK)
}
