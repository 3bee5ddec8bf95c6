// Package hooks is the lifecycle extension point of the engine. Layers such
// as auth, client compat, and CalDAV register per-method hooks instead of
// reaching into the core: before-hooks may short-circuit with a full
// response, after-hooks transform the one the handler built.
package hooks

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/dav/common"
)

// Any registers a hook for every method.
const Any = "*"

type Registry struct {
	mu     sync.RWMutex
	before map[string][]common.BeforeHook
	after  map[string][]common.AfterHook
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		before: make(map[string][]common.BeforeHook),
		after:  make(map[string][]common.AfterHook),
		logger: logger,
	}
}

func (r *Registry) OnBefore(method string, h common.BeforeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	method = strings.ToUpper(method)
	r.before[method] = append(r.before[method], h)
}

func (r *Registry) OnAfter(method string, h common.AfterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	method = strings.ToUpper(method)
	r.after[method] = append(r.after[method], h)
}

// RunBefore fires the method's before-hooks in registration order and stops
// at the first one producing a response. Hook errors are logged and
// swallowed; the canonical handler path still runs.
func (r *Registry) RunBefore(ctx context.Context, req *common.Request) *common.Response {
	r.mu.RLock()
	chain := append(append([]common.BeforeHook{}, r.before[Any]...), r.before[strings.ToUpper(req.Method)]...)
	r.mu.RUnlock()
	for _, h := range chain {
		resp, err := h(ctx, req)
		if err != nil {
			r.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path()).Msg("before hook failed")
			continue
		}
		if resp != nil {
			return resp
		}
	}
	return nil
}

// RunAfter folds the method's after-hooks over the response. A hook error
// keeps the running response.
func (r *Registry) RunAfter(ctx context.Context, req *common.Request, resp *common.Response) *common.Response {
	r.mu.RLock()
	chain := append(append([]common.AfterHook{}, r.after[Any]...), r.after[strings.ToUpper(req.Method)]...)
	r.mu.RUnlock()
	for _, h := range chain {
		next, err := h(ctx, req, resp)
		if err != nil {
			r.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path()).Msg("after hook failed")
			continue
		}
		if next != nil {
			resp = next
		}
	}
	return resp
}
