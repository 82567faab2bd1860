// Package redisstore shares cache stores between gateway replicas through Redis.
// Each store is a hash; the set of known store names is kept alongside.
package redisstore

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"offline_gateway/internal/cache"
)

const DefaultKeyPrefix = "gateway:"

type Config struct {
	Addr           string
	Password       string
	DB             int
	KeyPrefix      string
	MaxObjectBytes int64
}

type Storage struct {
	rdb            *redis.Client
	prefix         string
	maxObjectBytes int64
}

func New(cfg Config) *Storage {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(rdb, cfg.KeyPrefix, cfg.MaxObjectBytes)
}

func NewWithClient(rdb *redis.Client, prefix string, maxObjectBytes int64) *Storage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = cache.DefaultMaxObjectBytes
	}
	return &Storage{rdb: rdb, prefix: prefix, maxObjectBytes: maxObjectBytes}
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.rdb.Ping(ctx).Err(), "redis ping")
}

func (s *Storage) Open(ctx context.Context, name string) (cache.Store, error) {
	if name == "" {
		return nil, cache.ErrInvalidName
	}
	if err := s.rdb.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		return nil, errors.Wrapf(err, "register store %s", name)
	}
	return &Store{storage: s, name: name}, nil
}

func (s *Storage) Names(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list stores")
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Drop(ctx context.Context, name string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.storeKey(name))
		return nil
	})
	return errors.Wrapf(err, "drop store %s", name)
}

func (s *Storage) Close() error {
	return s.rdb.Close()
}

func (s *Storage) namesKey() string {
	return s.prefix + "stores"
}

func (s *Storage) storeKey(name string) string {
	return s.prefix + "store:" + name
}

func (s *Storage) registered(ctx context.Context, name string) error {
	ok, err := s.rdb.SIsMember(ctx, s.namesKey(), name).Result()
	if err != nil {
		return errors.Wrapf(err, "check store %s", name)
	}
	if !ok {
		return cache.ErrStoreClosed
	}
	return nil
}

type Store struct {
	storage *Storage
	name    string
}

func (st *Store) Name() string {
	return st.name
}

func (st *Store) Get(ctx context.Context, key string) (cache.Snapshot, bool, error) {
	if err := st.storage.registered(ctx, st.name); err != nil {
		return cache.Snapshot{}, false, err
	}
	data, err := st.storage.rdb.HGet(ctx, st.storage.storeKey(st.name), key).Bytes()
	if err == redis.Nil {
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

func (st *Store) Put(ctx context.Context, key string, snapshot cache.Snapshot) error {
	if int64(len(snapshot.Body)) > st.storage.maxObjectBytes {
		return cache.ErrObjectTooLarge
	}
	if err := st.storage.registered(ctx, st.name); err != nil {
		return err
	}
	data, err := cache.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := st.storage.rdb.HSet(ctx, st.storage.storeKey(st.name), key, data).Err(); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, key string) error {
	if err := st.storage.rdb.HDel(ctx, st.storage.storeKey(st.name), key).Err(); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (st *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := st.storage.rdb.HKeys(ctx, st.storage.storeKey(st.name)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list keys of %s", st.name)
	}
	sort.Strings(keys)
	return keys, nil
}
