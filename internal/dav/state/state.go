// Package state keeps the protocol side-state the backend knows nothing
// about: locks, dead properties, collection orderings, and version history.
// Everything is JSON (plus raw version blobs) under the reserved _dav tree on
// the same persist adapter, keyed by the URL-safe base64 of the resource
// path. Reads fall back to empty records on any failure; writes propagate.
//
// Side-state is keyed by the exact path. MOVE and COPY do not relocate the
// records of a collection's children; that is a documented limitation.
package state

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/persist"
)

const sidecarRoot = "_dav"

type LockRecord struct {
	Token     string `json:"token"`
	UpdatedAt string `json:"updatedAt"`
}

type VersionRecord struct {
	ID        string `json:"id"`
	Size      int64  `json:"size"`
	MIME      string `json:"mime"`
	CreatedAt string `json:"createdAt"`
}

type orderRecord struct {
	Names []string `json:"names"`
}

type versionMeta struct {
	Versions []VersionRecord `json:"versions"`
}

type Store struct {
	pa     persist.Adapter
	logger zerolog.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func New(pa persist.Adapter, logger zerolog.Logger) *Store {
	return &Store{pa: pa, logger: logger, keys: make(map[string]*sync.Mutex)}
}

// Key encodes a resource path into a filename-safe token.
func Key(parts []string) string {
	return base64.URLEncoding.EncodeToString([]byte("/" + strings.Join(parts, "/")))
}

// lockKey serializes read-modify-write cycles per (path, kind) within this
// process. Cross-process writers degrade to last-writer-wins on whole files.
func (s *Store) lockKey(kind, key string) func() {
	s.mu.Lock()
	m, ok := s.keys[kind+"/"+key]
	if !ok {
		m = &sync.Mutex{}
		s.keys[kind+"/"+key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Store) readJSON(ctx context.Context, parts []string, out any) bool {
	b, err := s.pa.ReadFile(ctx, parts)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.logger.Debug().Err(err).Strs("path", parts).Msg("sidecar parse failed, using defaults")
		return false
	}
	return true
}

func (s *Store) writeJSON(ctx context.Context, parts []string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := s.pa.EnsureDir(ctx, parts[:len(parts)-1]); err != nil {
		return err
	}
	return s.pa.WriteFile(ctx, parts, b, "application/json")
}

func lockPath(key string) []string {
	return []string{sidecarRoot, "locks", key + ".json"}
}
func propsPath(key string) []string {
	return []string{sidecarRoot, "props", key + ".json"}
}
func orderPath(key string) []string {
	return []string{sidecarRoot, "order", key + ".json"}
}
func versionsDir(key string) []string {
	return []string{sidecarRoot, "versions", key}
}
func versionMetaPath(key string) []string {
	return []string{sidecarRoot, "versions", key, "meta.json"}
}
func versionBlobPath(key, id string) []string {
	return []string{sidecarRoot, "versions", key, id + ".bin"}
}

// Locks

func (s *Store) GetLock(ctx context.Context, parts []string) *LockRecord {
	var rec LockRecord
	if !s.readJSON(ctx, lockPath(Key(parts)), &rec) || rec.Token == "" {
		return nil
	}
	return &rec
}

func (s *Store) SetLock(ctx context.Context, parts []string, token string) error {
	key := Key(parts)
	unlock := s.lockKey("locks", key)
	defer unlock()
	rec := LockRecord{Token: token, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	return s.writeJSON(ctx, lockPath(key), rec)
}

// ReleaseLock removes the lock when no lock exists or the token matches. It
// reports whether the caller may proceed.
func (s *Store) ReleaseLock(ctx context.Context, parts []string, token string) (bool, error) {
	key := Key(parts)
	unlock := s.lockKey("locks", key)
	defer unlock()
	var rec LockRecord
	if !s.readJSON(ctx, lockPath(key), &rec) || rec.Token == "" {
		return true, nil
	}
	if token != "" && rec.Token != token {
		return false, nil
	}
	if token == "" {
		return false, nil
	}
	err := s.pa.Remove(ctx, lockPath(key), false)
	if err != nil && errors.Is(err, persist.ErrNotFound) {
		err = nil
	}
	return true, err
}

// Dead properties

func (s *Store) GetProps(ctx context.Context, parts []string) map[string]string {
	props := map[string]string{}
	s.readJSON(ctx, propsPath(Key(parts)), &props)
	return props
}

func (s *Store) SetProps(ctx context.Context, parts []string, full map[string]string) error {
	key := Key(parts)
	unlock := s.lockKey("props", key)
	defer unlock()
	return s.writeJSON(ctx, propsPath(key), full)
}

func (s *Store) MergeProps(ctx context.Context, parts []string, patch map[string]string) error {
	key := Key(parts)
	unlock := s.lockKey("props", key)
	defer unlock()
	props := map[string]string{}
	s.readJSON(ctx, propsPath(key), &props)
	for k, v := range patch {
		props[k] = v
	}
	return s.writeJSON(ctx, propsPath(key), props)
}

// RemoveProps deletes the named keys, reporting which of them were absent.
func (s *Store) RemoveProps(ctx context.Context, parts []string, keys []string) ([]string, error) {
	key := Key(parts)
	unlock := s.lockKey("props", key)
	defer unlock()
	props := map[string]string{}
	s.readJSON(ctx, propsPath(key), &props)
	var absent []string
	for _, k := range keys {
		if _, ok := props[k]; ok {
			delete(props, k)
		} else {
			absent = append(absent, k)
		}
	}
	return absent, s.writeJSON(ctx, propsPath(key), props)
}

// Collection ordering

func (s *Store) GetOrder(ctx context.Context, parts []string) []string {
	var rec orderRecord
	s.readJSON(ctx, orderPath(Key(parts)), &rec)
	return rec.Names
}

func (s *Store) SetOrder(ctx context.Context, parts []string, names []string) error {
	key := Key(parts)
	unlock := s.lockKey("order", key)
	defer unlock()
	return s.writeJSON(ctx, orderPath(key), orderRecord{Names: names})
}

// ApplyOrder reorders children per the stored order: explicit order file
// first, then the Z:order CSV dead property, then backend-native order.
// Known names keep the stored sequence; unknown children append in input
// order; stored names with no matching child are skipped.
func (s *Store) ApplyOrder(ctx context.Context, parts []string, children []string) []string {
	order := s.GetOrder(ctx, parts)
	if len(order) == 0 {
		if csv, ok := s.GetProps(ctx, parts)["Z:order"]; ok && csv != "" {
			order = splitCSV(csv)
		}
	}
	if len(order) == 0 {
		return children
	}
	present := make(map[string]bool, len(children))
	for _, c := range children {
		present[c] = true
	}
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(children))
	for _, name := range order {
		if present[name] && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, c := range children {
		if !seen[c] {
			out = append(out, c)
			seen[c] = true
		}
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Versions

func (s *Store) RecordVersion(ctx context.Context, parts []string, data []byte, mime string) (VersionRecord, error) {
	key := Key(parts)
	unlock := s.lockKey("versions", key)
	defer unlock()
	var meta versionMeta
	s.readJSON(ctx, versionMetaPath(key), &meta)
	id := strconv.Itoa(len(meta.Versions) + 1)
	rec := VersionRecord{
		ID:        id,
		Size:      int64(len(data)),
		MIME:      mime,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.pa.EnsureDir(ctx, versionsDir(key)); err != nil {
		return rec, err
	}
	if err := s.pa.WriteFile(ctx, versionBlobPath(key, id), data, mime); err != nil {
		return rec, err
	}
	meta.Versions = append(meta.Versions, rec)
	return rec, s.writeJSON(ctx, versionMetaPath(key), meta)
}

func (s *Store) ListVersions(ctx context.Context, parts []string) []VersionRecord {
	var meta versionMeta
	s.readJSON(ctx, versionMetaPath(Key(parts)), &meta)
	return meta.Versions
}

func (s *Store) ReadVersion(ctx context.Context, parts []string, id string) ([]byte, string, error) {
	key := Key(parts)
	var meta versionMeta
	s.readJSON(ctx, versionMetaPath(key), &meta)
	for _, rec := range meta.Versions {
		if rec.ID == id {
			b, err := s.pa.ReadFile(ctx, versionBlobPath(key, id))
			if err != nil {
				return nil, "", err
			}
			return b, rec.MIME, nil
		}
	}
	return nil, "", persist.ErrNotFound
}
