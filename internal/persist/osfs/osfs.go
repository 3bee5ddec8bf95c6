// Package osfs implements persist.Adapter on a directory of the local
// filesystem. Writes go through a temp file and rename so readers never see a
// half-written file.
package osfs

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/davgate/davgate/internal/persist"
)

type Adapter struct {
	root string
}

func New(root string) (*Adapter, error) {
	if root == "" {
		return nil, errors.New("root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Adapter{root: root}, nil
}

func (a *Adapter) abs(parts []string) string {
	return filepath.Join(append([]string{a.root}, parts...)...)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return persist.ErrNotFound
	case errors.Is(err, fs.ErrExist):
		return persist.ErrExists
	case errors.Is(err, fs.ErrPermission):
		return persist.ErrPermission
	case errors.Is(err, syscall.ENOTDIR):
		return persist.ErrNotDir
	case errors.Is(err, syscall.EISDIR):
		return persist.ErrIsDir
	case errors.Is(err, syscall.ENOTEMPTY):
		return persist.ErrNotEmpty
	}
	return err
}

func (a *Adapter) Exists(_ context.Context, parts []string) (bool, error) {
	_, err := os.Stat(a.abs(parts))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return false, nil
	}
	return false, mapErr(err)
}

func (a *Adapter) Stat(_ context.Context, parts []string) (persist.Info, error) {
	fi, err := os.Stat(a.abs(parts))
	if err != nil {
		return persist.Info{}, mapErr(err)
	}
	info := persist.Info{Dir: fi.IsDir(), ModTime: fi.ModTime()}
	if !fi.IsDir() {
		info.Size = fi.Size()
		info.MIME = mime.TypeByExtension(filepath.Ext(fi.Name()))
	}
	return info, nil
}

func (a *Adapter) ReadDir(_ context.Context, parts []string) ([]string, error) {
	ents, err := os.ReadDir(a.abs(parts))
	if err != nil {
		return nil, mapErr(err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names, nil
}

func (a *Adapter) ReadFile(_ context.Context, parts []string) ([]byte, error) {
	b, err := os.ReadFile(a.abs(parts))
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (a *Adapter) WriteFile(_ context.Context, parts []string, data []byte, _ string) error {
	if len(parts) == 0 {
		return persist.ErrIsDir
	}
	p := a.abs(parts)
	if fi, err := os.Stat(p); err == nil && fi.IsDir() {
		return persist.ErrIsDir
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return mapErr(err)
	}
	return mapErr(os.Rename(tmp, p))
}

func (a *Adapter) EnsureDir(_ context.Context, parts []string) error {
	return mapErr(os.MkdirAll(a.abs(parts), 0o755))
}

func (a *Adapter) Remove(_ context.Context, parts []string, recursive bool) error {
	if len(parts) == 0 {
		return persist.ErrPermission
	}
	p := a.abs(parts)
	if _, err := os.Stat(p); err != nil {
		return mapErr(err)
	}
	if recursive {
		return mapErr(os.RemoveAll(p))
	}
	return mapErr(os.Remove(p))
}

func (a *Adapter) Move(_ context.Context, from, to []string) error {
	if _, err := os.Stat(a.abs(to)); err == nil {
		return persist.ErrExists
	}
	return mapErr(os.Rename(a.abs(from), a.abs(to)))
}

func (a *Adapter) Copy(ctx context.Context, from, to []string) error {
	if _, err := os.Stat(a.abs(to)); err == nil {
		return persist.ErrExists
	}
	fi, err := os.Stat(a.abs(from))
	if err != nil {
		return mapErr(err)
	}
	if !fi.IsDir() {
		b, err := a.ReadFile(ctx, from)
		if err != nil {
			return err
		}
		return a.WriteFile(ctx, to, b, "")
	}
	if err := os.MkdirAll(a.abs(to), 0o755); err != nil {
		return mapErr(err)
	}
	names, err := a.ReadDir(ctx, from)
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		if err := a.Copy(ctx, append(append([]string{}, from...), name), append(append([]string{}, to...), name)); err != nil {
			return err
		}
	}
	return nil
}
