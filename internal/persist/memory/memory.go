// Package memory implements persist.Adapter on an in-process map. It backs
// unit tests and ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davgate/davgate/internal/persist"
)

type node struct {
	dir  bool
	data []byte
	mime string
	mod  time.Time
}

type Adapter struct {
	mu    sync.RWMutex
	nodes map[string]*node // key "" is the root collection
}

func New() *Adapter {
	return &Adapter{nodes: map[string]*node{"": {dir: true, mod: time.Now()}}}
}

func key(parts []string) string { return strings.Join(parts, "/") }

func parentKey(k string) string {
	i := strings.LastIndex(k, "/")
	if i < 0 {
		return ""
	}
	return k[:i]
}

func (a *Adapter) Exists(_ context.Context, parts []string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.nodes[key(parts)]
	return ok, nil
}

func (a *Adapter) Stat(_ context.Context, parts []string) (persist.Info, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.nodes[key(parts)]
	if !ok {
		return persist.Info{}, persist.ErrNotFound
	}
	return persist.Info{Dir: n.dir, Size: int64(len(n.data)), MIME: n.mime, ModTime: n.mod}, nil
}

func (a *Adapter) ReadDir(_ context.Context, parts []string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	k := key(parts)
	n, ok := a.nodes[k]
	if !ok {
		return nil, persist.ErrNotFound
	}
	if !n.dir {
		return nil, persist.ErrNotDir
	}
	prefix := k
	if prefix != "" {
		prefix += "/"
	}
	var names []string
	for nk := range a.nodes {
		if nk == k || !strings.HasPrefix(nk, prefix) {
			continue
		}
		rest := nk[len(prefix):]
		if !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (a *Adapter) ReadFile(_ context.Context, parts []string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.nodes[key(parts)]
	if !ok {
		return nil, persist.ErrNotFound
	}
	if n.dir {
		return nil, persist.ErrIsDir
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

func (a *Adapter) WriteFile(_ context.Context, parts []string, data []byte, mime string) error {
	if len(parts) == 0 {
		return persist.ErrIsDir
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(parts)
	if n, ok := a.nodes[k]; ok && n.dir {
		return persist.ErrIsDir
	}
	p, ok := a.nodes[parentKey(k)]
	if !ok {
		return persist.ErrNotFound
	}
	if !p.dir {
		return persist.ErrNotDir
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.nodes[k] = &node{data: buf, mime: mime, mod: time.Now()}
	return nil
}

func (a *Adapter) EnsureDir(_ context.Context, parts []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i <= len(parts); i++ {
		k := key(parts[:i])
		if n, ok := a.nodes[k]; ok {
			if !n.dir {
				return persist.ErrNotDir
			}
			continue
		}
		a.nodes[k] = &node{dir: true, mod: time.Now()}
	}
	return nil
}

func (a *Adapter) Remove(_ context.Context, parts []string, recursive bool) error {
	if len(parts) == 0 {
		return persist.ErrPermission
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(parts)
	n, ok := a.nodes[k]
	if !ok {
		return persist.ErrNotFound
	}
	if n.dir {
		prefix := k + "/"
		for nk := range a.nodes {
			if strings.HasPrefix(nk, prefix) {
				if !recursive {
					return persist.ErrNotEmpty
				}
				delete(a.nodes, nk)
			}
		}
	}
	delete(a.nodes, k)
	return nil
}

func (a *Adapter) Move(_ context.Context, from, to []string) error {
	return a.relocate(from, to, true)
}

func (a *Adapter) Copy(_ context.Context, from, to []string) error {
	return a.relocate(from, to, false)
}

func (a *Adapter) relocate(from, to []string, remove bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	fk, tk := key(from), key(to)
	src, ok := a.nodes[fk]
	if !ok {
		return persist.ErrNotFound
	}
	if _, ok := a.nodes[tk]; ok {
		return persist.ErrExists
	}
	if p, ok := a.nodes[parentKey(tk)]; !ok || !p.dir {
		return persist.ErrNotFound
	}
	move := func(oldKey, newKey string) {
		n := a.nodes[oldKey]
		cp := &node{dir: n.dir, mime: n.mime, mod: time.Now()}
		if !n.dir {
			cp.data = make([]byte, len(n.data))
			copy(cp.data, n.data)
		}
		a.nodes[newKey] = cp
		if remove {
			delete(a.nodes, oldKey)
		}
	}
	move(fk, tk)
	if src.dir {
		prefix := fk + "/"
		var keys []string
		for nk := range a.nodes {
			if strings.HasPrefix(nk, prefix) {
				keys = append(keys, nk)
			}
		}
		for _, nk := range keys {
			move(nk, tk+"/"+nk[len(prefix):])
		}
	}
	return nil
}
