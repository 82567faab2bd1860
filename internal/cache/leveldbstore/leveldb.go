// Package leveldbstore keeps cache stores in an embedded LevelDB database so
// snapshots survive restarts.
package leveldbstore

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbStorage "github.com/syndtr/goleveldb/leveldb/storage"
	leveldbUtil "github.com/syndtr/goleveldb/leveldb/util"

	"offline_gateway/internal/cache"
)

const (
	storePrefix = "s\x00"
	entryPrefix = "e\x00"
	separator   = "\x00"
)

type Storage struct {
	db             *leveldb.DB
	maxObjectBytes int64
}

// Open opens the database at path, or an in-memory database when path is empty.
func Open(path string, maxObjectBytes int64) (*Storage, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbStorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = cache.DefaultMaxObjectBytes
	}
	return &Storage{db: db, maxObjectBytes: maxObjectBytes}, nil
}

func (s *Storage) Open(_ context.Context, name string) (cache.Store, error) {
	if name == "" {
		return nil, cache.ErrInvalidName
	}
	if strings.Contains(name, separator) {
		return nil, errors.Errorf("store name %q contains a NUL byte", name)
	}
	if err := s.db.Put(markerKey(name), []byte{1}, nil); err != nil {
		return nil, errors.Wrapf(err, "register store %s", name)
	}
	return &Store{storage: s, name: name}, nil
}

func (s *Storage) Names(_ context.Context) ([]string, error) {
	iter := s.db.NewIterator(leveldbUtil.BytesPrefix([]byte(storePrefix)), nil)
	defer iter.Release()
	names := []string{}
	for iter.Next() {
		names = append(names, string(bytes.TrimPrefix(iter.Key(), []byte(storePrefix))))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "list stores")
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Drop(_ context.Context, name string) error {
	batch := new(leveldb.Batch)
	batch.Delete(markerKey(name))
	iter := s.db.NewIterator(leveldbUtil.BytesPrefix(entryPrefixFor(name)), nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrapf(err, "scan store %s", name)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "drop store %s", name)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) registered(name string) (bool, error) {
	ok, err := s.db.Has(markerKey(name), nil)
	if err != nil {
		return false, errors.Wrapf(err, "check store %s", name)
	}
	return ok, nil
}

type Store struct {
	storage *Storage
	name    string
}

func (st *Store) Name() string {
	return st.name
}

func (st *Store) Get(_ context.Context, key string) (cache.Snapshot, bool, error) {
	if ok, err := st.storage.registered(st.name); err != nil {
		return cache.Snapshot{}, false, err
	} else if !ok {
		return cache.Snapshot{}, false, cache.ErrStoreClosed
	}
	data, err := st.storage.db.Get(st.entryKey(key), nil)
	if err == leveldb.ErrNotFound {
		return cache.Snapshot{}, false, nil
	}
	if err != nil {
		return cache.Snapshot{}, false, errors.Wrapf(err, "get %s", key)
	}
	snapshot, err := cache.DecodeSnapshot(data)
	if err != nil {
		return cache.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func (st *Store) Put(_ context.Context, key string, snapshot cache.Snapshot) error {
	if int64(len(snapshot.Body)) > st.storage.maxObjectBytes {
		return cache.ErrObjectTooLarge
	}
	if ok, err := st.storage.registered(st.name); err != nil {
		return err
	} else if !ok {
		return cache.ErrStoreClosed
	}
	data, err := cache.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := st.storage.db.Put(st.entryKey(key), data, nil); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

func (st *Store) Delete(_ context.Context, key string) error {
	if err := st.storage.db.Delete(st.entryKey(key), nil); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (st *Store) Keys(_ context.Context) ([]string, error) {
	prefix := entryPrefixFor(st.name)
	iter := st.storage.db.NewIterator(leveldbUtil.BytesPrefix(prefix), nil)
	defer iter.Release()
	keys := []string{}
	for iter.Next() {
		keys = append(keys, string(bytes.TrimPrefix(iter.Key(), prefix)))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrapf(err, "list keys of %s", st.name)
	}
	return keys, nil
}

func (st *Store) entryKey(key string) []byte {
	return append(entryPrefixFor(st.name), key...)
}

func markerKey(name string) []byte {
	return []byte(storePrefix + name)
}

func entryPrefixFor(name string) []byte {
	return []byte(entryPrefix + name + separator)
}
