// Package readcache wraps an Adapter with a request-scoped read cache so a
// deep PROPFIND traversal stats and lists each node once. Mutations drop the
// affected paths, their parents, and anything cached below them.
package readcache

import (
	"context"
	"strings"
	"sync"

	"github.com/davgate/davgate/internal/persist"
)

type existsEntry struct {
	ok bool
}

type Adapter struct {
	inner persist.Adapter

	mu     sync.Mutex
	exists map[string]existsEntry
	stats  map[string]persist.Info
	dirs   map[string][]string
	files  map[string][]byte
}

func Wrap(inner persist.Adapter) *Adapter {
	return &Adapter{
		inner:  inner,
		exists: make(map[string]existsEntry),
		stats:  make(map[string]persist.Info),
		dirs:   make(map[string][]string),
		files:  make(map[string][]byte),
	}
}

func key(parts []string) string { return strings.Join(parts, "/") }

func (a *Adapter) invalidate(parts []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(parts)
	drop := func(m map[string]existsEntry) {
		for ck := range m {
			if ck == k || strings.HasPrefix(ck, k+"/") {
				delete(m, ck)
			}
		}
	}
	drop(a.exists)
	for ck := range a.stats {
		if ck == k || strings.HasPrefix(ck, k+"/") {
			delete(a.stats, ck)
		}
	}
	for ck := range a.dirs {
		if ck == k || strings.HasPrefix(ck, k+"/") {
			delete(a.dirs, ck)
		}
	}
	for ck := range a.files {
		if ck == k || strings.HasPrefix(ck, k+"/") {
			delete(a.files, ck)
		}
	}
	if len(parts) > 0 {
		pk := key(parts[:len(parts)-1])
		delete(a.exists, pk)
		delete(a.stats, pk)
		delete(a.dirs, pk)
	}
}

func (a *Adapter) Exists(ctx context.Context, parts []string) (bool, error) {
	k := key(parts)
	a.mu.Lock()
	if e, ok := a.exists[k]; ok {
		a.mu.Unlock()
		return e.ok, nil
	}
	a.mu.Unlock()
	ok, err := a.inner.Exists(ctx, parts)
	if err == nil {
		a.mu.Lock()
		a.exists[k] = existsEntry{ok: ok}
		a.mu.Unlock()
	}
	return ok, err
}

func (a *Adapter) Stat(ctx context.Context, parts []string) (persist.Info, error) {
	k := key(parts)
	a.mu.Lock()
	if info, ok := a.stats[k]; ok {
		a.mu.Unlock()
		return info, nil
	}
	a.mu.Unlock()
	info, err := a.inner.Stat(ctx, parts)
	if err == nil {
		a.mu.Lock()
		a.stats[k] = info
		a.mu.Unlock()
	}
	return info, err
}

func (a *Adapter) ReadDir(ctx context.Context, parts []string) ([]string, error) {
	k := key(parts)
	a.mu.Lock()
	if names, ok := a.dirs[k]; ok {
		a.mu.Unlock()
		return append([]string(nil), names...), nil
	}
	a.mu.Unlock()
	names, err := a.inner.ReadDir(ctx, parts)
	if err == nil {
		a.mu.Lock()
		a.dirs[k] = append([]string(nil), names...)
		a.mu.Unlock()
	}
	return names, err
}

func (a *Adapter) ReadFile(ctx context.Context, parts []string) ([]byte, error) {
	k := key(parts)
	a.mu.Lock()
	if b, ok := a.files[k]; ok {
		a.mu.Unlock()
		return b, nil
	}
	a.mu.Unlock()
	b, err := a.inner.ReadFile(ctx, parts)
	if err == nil {
		a.mu.Lock()
		a.files[k] = b
		a.mu.Unlock()
	}
	return b, err
}

func (a *Adapter) WriteFile(ctx context.Context, parts []string, data []byte, mime string) error {
	a.invalidate(parts)
	return a.inner.WriteFile(ctx, parts, data, mime)
}

func (a *Adapter) EnsureDir(ctx context.Context, parts []string) error {
	a.invalidate(parts)
	return a.inner.EnsureDir(ctx, parts)
}

func (a *Adapter) Remove(ctx context.Context, parts []string, recursive bool) error {
	a.invalidate(parts)
	return a.inner.Remove(ctx, parts, recursive)
}

func (a *Adapter) Move(ctx context.Context, from, to []string) error {
	a.invalidate(from)
	a.invalidate(to)
	return a.inner.Move(ctx, from, to)
}

func (a *Adapter) Copy(ctx context.Context, from, to []string) error {
	a.invalidate(to)
	return a.inner.Copy(ctx, from, to)
}
