// Package sqlitefs implements persist.Adapter on a single sqlite database.
// Nodes live in one table keyed by the joined segment path; directories are
// rows with no blob. Suits single-box deployments that want one data file.
package sqlitefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/persist"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	path  TEXT PRIMARY KEY,
	dir   INTEGER NOT NULL,
	data  BLOB,
	mime  TEXT NOT NULL DEFAULT '',
	mtime INTEGER NOT NULL
);
`

type Adapter struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(dsn string, logger zerolog.Logger) (*Adapter, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	a := &Adapter{db: db, logger: logger}
	// Root collection always exists.
	if _, err := db.Exec(`INSERT OR IGNORE INTO nodes(path, dir, mtime) VALUES ('', 1, ?)`, time.Now().Unix()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) Close() { _ = a.db.Close() }

func key(parts []string) string { return strings.Join(parts, "/") }

func parentKey(k string) string {
	i := strings.LastIndex(k, "/")
	if i < 0 {
		return ""
	}
	return k[:i]
}

func (a *Adapter) Exists(ctx context.Context, parts []string) (bool, error) {
	var one int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE path = ?`, key(parts)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (a *Adapter) Stat(ctx context.Context, parts []string) (persist.Info, error) {
	var dir int
	var size sql.NullInt64
	var mime string
	var mtime int64
	err := a.db.QueryRowContext(ctx,
		`SELECT dir, length(data), mime, mtime FROM nodes WHERE path = ?`, key(parts)).
		Scan(&dir, &size, &mime, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return persist.Info{}, persist.ErrNotFound
	}
	if err != nil {
		return persist.Info{}, err
	}
	return persist.Info{Dir: dir == 1, Size: size.Int64, MIME: mime, ModTime: time.Unix(mtime, 0).UTC()}, nil
}

func (a *Adapter) ReadDir(ctx context.Context, parts []string) ([]string, error) {
	info, err := a.Stat(ctx, parts)
	if err != nil {
		return nil, err
	}
	if !info.Dir {
		return nil, persist.ErrNotDir
	}
	prefix := key(parts)
	if prefix != "" {
		prefix += "/"
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT path FROM nodes WHERE path LIKE ? || '%' AND path != ? ORDER BY path`,
		prefix, key(parts))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest != "" && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	return names, rows.Err()
}

func (a *Adapter) ReadFile(ctx context.Context, parts []string) ([]byte, error) {
	var dir int
	var data []byte
	err := a.db.QueryRowContext(ctx, `SELECT dir, data FROM nodes WHERE path = ?`, key(parts)).Scan(&dir, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if dir == 1 {
		return nil, persist.ErrIsDir
	}
	return data, nil
}

func (a *Adapter) WriteFile(ctx context.Context, parts []string, data []byte, mime string) error {
	if len(parts) == 0 {
		return persist.ErrIsDir
	}
	k := key(parts)
	pinfo, err := a.Stat(ctx, parts[:len(parts)-1])
	if err != nil {
		return err
	}
	if !pinfo.Dir {
		return persist.ErrNotDir
	}
	if info, err := a.Stat(ctx, parts); err == nil && info.Dir {
		return persist.ErrIsDir
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime) VALUES (?, 0, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, mime = excluded.mime, mtime = excluded.mtime`,
		k, data, mime, time.Now().Unix())
	return err
}

func (a *Adapter) EnsureDir(ctx context.Context, parts []string) error {
	for i := 0; i <= len(parts); i++ {
		k := key(parts[:i])
		info, err := a.Stat(ctx, parts[:i])
		if err == nil {
			if !info.Dir {
				return persist.ErrNotDir
			}
			continue
		}
		if !errors.Is(err, persist.ErrNotFound) {
			return err
		}
		if _, err := a.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO nodes(path, dir, mtime) VALUES (?, 1, ?)`, k, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, parts []string, recursive bool) error {
	if len(parts) == 0 {
		return persist.ErrPermission
	}
	info, err := a.Stat(ctx, parts)
	if err != nil {
		return err
	}
	k := key(parts)
	if info.Dir {
		var children int
		if err := a.db.QueryRowContext(ctx,
			`SELECT count(*) FROM nodes WHERE path LIKE ? || '/%'`, k).Scan(&children); err != nil {
			return err
		}
		if children > 0 && !recursive {
			return persist.ErrNotEmpty
		}
		if _, err := a.db.ExecContext(ctx, `DELETE FROM nodes WHERE path LIKE ? || '/%'`, k); err != nil {
			return err
		}
	}
	_, err = a.db.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, k)
	return err
}

func (a *Adapter) Move(ctx context.Context, from, to []string) error {
	return a.relocate(ctx, from, to, true)
}

func (a *Adapter) Copy(ctx context.Context, from, to []string) error {
	return a.relocate(ctx, from, to, false)
}

func (a *Adapter) relocate(ctx context.Context, from, to []string, remove bool) error {
	if _, err := a.Stat(ctx, from); err != nil {
		return err
	}
	if ok, err := a.Exists(ctx, to); err != nil {
		return err
	} else if ok {
		return persist.ErrExists
	}
	fk, tk := key(from), key(to)
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime)
		 SELECT ?, dir, data, mime, ? FROM nodes WHERE path = ?`, tk, now, fk); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime)
		 SELECT ? || substr(path, length(?) + 1), dir, data, mime, ? FROM nodes WHERE path LIKE ? || '/%'`,
		tk, fk, now, fk); err != nil {
		return err
	}
	if remove {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM nodes WHERE path = ? OR path LIKE ? || '/%'`, fk, fk); err != nil {
			return err
		}
	}
	return tx.Commit()
}
