// Package pgfs implements persist.Adapter on PostgreSQL for deployments that
// share one resource tree across processes.
package pgfs

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/persist"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Adapter struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func New(dsn string, logger zerolog.Logger) (*Adapter, error) {
	if err := runMigrations(dsn, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	a := &Adapter{pool: pool, logger: logger}
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO nodes(path, dir, mtime) VALUES ('', true, now()) ON CONFLICT DO NOTHING`); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func runMigrations(dsn string, logger zerolog.Logger) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		logger.Warn().Uint("version", version).Msg("database is in dirty state, forcing version")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	}
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (a *Adapter) Close() { a.pool.Close() }

func key(parts []string) string { return strings.Join(parts, "/") }

func (a *Adapter) Exists(ctx context.Context, parts []string) (bool, error) {
	var one int
	err := a.pool.QueryRow(ctx, `SELECT 1 FROM nodes WHERE path = $1`, key(parts)).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (a *Adapter) Stat(ctx context.Context, parts []string) (persist.Info, error) {
	var dir bool
	var size *int64
	var mime string
	var mtime time.Time
	err := a.pool.QueryRow(ctx,
		`SELECT dir, length(data)::bigint, mime, mtime FROM nodes WHERE path = $1`, key(parts)).
		Scan(&dir, &size, &mime, &mtime)
	if errors.Is(err, pgx.ErrNoRows) {
		return persist.Info{}, persist.ErrNotFound
	}
	if err != nil {
		return persist.Info{}, err
	}
	info := persist.Info{Dir: dir, MIME: mime, ModTime: mtime.UTC()}
	if size != nil {
		info.Size = *size
	}
	return info, nil
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
	rows, err := a.pool.Query(ctx,
		`SELECT path FROM nodes WHERE path LIKE $1 || '%' AND path != $2 ORDER BY path`,
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
	var dir bool
	var data []byte
	err := a.pool.QueryRow(ctx, `SELECT dir, data FROM nodes WHERE path = $1`, key(parts)).Scan(&dir, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if dir {
		return nil, persist.ErrIsDir
	}
	return data, nil
}

func (a *Adapter) WriteFile(ctx context.Context, parts []string, data []byte, mime string) error {
	if len(parts) == 0 {
		return persist.ErrIsDir
	}
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
	_, err = a.pool.Exec(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime) VALUES ($1, false, $2, $3, now())
		 ON CONFLICT (path) DO UPDATE SET data = excluded.data, mime = excluded.mime, mtime = excluded.mtime`,
		key(parts), data, mime)
	return err
}

func (a *Adapter) EnsureDir(ctx context.Context, parts []string) error {
	for i := 0; i <= len(parts); i++ {
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
		if _, err := a.pool.Exec(ctx,
			`INSERT INTO nodes(path, dir, mtime) VALUES ($1, true, now()) ON CONFLICT DO NOTHING`,
			key(parts[:i])); err != nil {
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
		var children int64
		if err := a.pool.QueryRow(ctx,
			`SELECT count(*) FROM nodes WHERE path LIKE $1 || '/%'`, k).Scan(&children); err != nil {
			return err
		}
		if children > 0 && !recursive {
			return persist.ErrNotEmpty
		}
		if _, err := a.pool.Exec(ctx, `DELETE FROM nodes WHERE path LIKE $1 || '/%'`, k); err != nil {
			return err
		}
	}
	_, err = a.pool.Exec(ctx, `DELETE FROM nodes WHERE path = $1`, k)
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
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime)
		 SELECT $1, dir, data, mime, now() FROM nodes WHERE path = $2`, tk, fk); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO nodes(path, dir, data, mime, mtime)
		 SELECT $1 || substr(path, length($2) + 1), dir, data, mime, now()
		 FROM nodes WHERE path LIKE $2 || '/%'`, tk, fk); err != nil {
		return err
	}
	if remove {
		if _, err := tx.Exec(ctx,
			`DELETE FROM nodes WHERE path = $1 OR path LIKE $1 || '/%'`, fk); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
