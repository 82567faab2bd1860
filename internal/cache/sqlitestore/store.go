// Package sqlitestore persists cache stores in a single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"offline_gateway/internal/cache"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_stores (
	name TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
	store TEXT NOT NULL REFERENCES cache_stores(name) ON DELETE CASCADE,
	key TEXT NOT NULL,
	snapshot BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
`

type Storage struct {
	sqlDB          *sql.DB
	maxObjectBytes int64
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens the SQLite file at path and creates the schema if needed.
func Open(path string, maxObjectBytes int64) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = cache.DefaultMaxObjectBytes
	}
	return &Storage{sqlDB: sqlDB, maxObjectBytes: maxObjectBytes}, nil
}

func (s *Storage) Open(ctx context.Context, name string) (cache.Store, error) {
	if name == "" {
		return nil, cache.ErrInvalidName
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_stores (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, toMillis(time.Now()))
	if err != nil {
		return nil, errors.Wrapf(err, "register store %s", name)
	}
	return &Store{storage: s, name: name}, nil
}

func (s *Storage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM cache_stores ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list stores")
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan store name")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "list stores")
}

func (s *Storage) Drop(ctx context.Context, name string) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_stores WHERE name = ?`, name)
	return errors.Wrapf(err, "drop store %s", name)
}

// Close closes the SQLite handle.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type Store struct {
	storage *Storage
	name    string
}

func (st *Store) Name() string {
	return st.name
}

func (st *Store) Get(ctx context.Context, key string) (cache.Snapshot, bool, error) {
	var data []byte
	err := st.storage.sqlDB.QueryRowContext(ctx,
		`SELECT e.snapshot FROM cache_stores s LEFT JOIN cache_entries e ON e.store = s.name AND e.key = ? WHERE s.name = ?`,
		key, st.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Snapshot{}, false, cache.ErrStoreClosed
	}
	if err != nil {
		return cache.Snapshot{}, false, errors.Wrapf(err, "get %s", key)
	}
	if data == nil {
		return cache.Snapshot{}, false, nil
	}
	snapshot, err := cache.DecodeSnapshot(data)
	if err != nil {
		return cache.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func (st *Store) Put(ctx context.Context, key string, snapshot cache.Snapshot) error {
	if int64(len(snapshot.Body)) > st.storage.maxObjectBytes {
		return cache.ErrObjectTooLarge
	}
	data, err := cache.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	result, err := st.storage.sqlDB.ExecContext(ctx, `
INSERT INTO cache_entries (store, key, snapshot, stored_at)
SELECT name, ?, ?, ? FROM cache_stores WHERE name = ?
ON CONFLICT(store, key) DO UPDATE SET snapshot = excluded.snapshot, stored_at = excluded.stored_at`,
		key, data, toMillis(snapshot.StoredAt), st.name)
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	if affected == 0 {
		return cache.ErrStoreClosed
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, key string) error {
	_, err := st.storage.sqlDB.ExecContext(ctx, `DELETE FROM cache_entries WHERE store = ? AND key = ?`, st.name, key)
	return errors.Wrapf(err, "delete %s", key)
}

func (st *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := st.storage.sqlDB.QueryContext(ctx, `SELECT key FROM cache_entries WHERE store = ? ORDER BY key`, st.name)
	if err != nil {
		return nil, errors.Wrapf(err, "list keys of %s", st.name)
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "list keys")
}
