// Package persist defines the storage contract the DAV engine runs on top of.
// An Adapter exposes plain file/directory primitives; everything protocol
// specific (locks, properties, versions) lives above it.
package persist

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrExists     = errors.New("already exists")
	ErrNotDir     = errors.New("not a directory")
	ErrIsDir      = errors.New("is a directory")
	ErrNotEmpty   = errors.New("directory not empty")
	ErrPermission = errors.New("permission denied")
)

// Info describes a single node. Size and MIME are meaningful for files only.
type Info struct {
	Dir     bool
	Size    int64
	MIME    string
	ModTime time.Time
}

// Adapter is the pluggable backend. Paths are normalized segment slices; the
// empty slice is the root collection. Every call is atomic on its own; no
// cross-call transaction is provided.
type Adapter interface {
	Exists(ctx context.Context, parts []string) (bool, error)
	Stat(ctx context.Context, parts []string) (Info, error)
	ReadDir(ctx context.Context, parts []string) ([]string, error)
	ReadFile(ctx context.Context, parts []string) ([]byte, error)
	WriteFile(ctx context.Context, parts []string, data []byte, mime string) error
	EnsureDir(ctx context.Context, parts []string) error
	Remove(ctx context.Context, parts []string, recursive bool) error
	Move(ctx context.Context, from, to []string) error
	Copy(ctx context.Context, from, to []string) error
}
