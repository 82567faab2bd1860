package cache

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultLRUSize = 1024

// LRUStorage bounds every store to a fixed number of entries, evicting the
// least recently used snapshot first.
type LRUStorage struct {
	mu             sync.Mutex
	stores         map[string]*LRUStore
	size           int
	maxObjectBytes int64
}

func NewLRUStorage(size int, maxObjectBytes int64) *LRUStorage {
	if size <= 0 {
		size = DefaultLRUSize
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &LRUStorage{
		stores:         make(map[string]*LRUStore),
		size:           size,
		maxObjectBytes: maxObjectBytes,
	}
}

func (s *LRUStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		return store, nil
	}
	entries, err := lru.New[string, Snapshot](s.size)
	if err != nil {
		return nil, err
	}
	store := &LRUStore{name: name, entries: entries, maxObjectBytes: s.maxObjectBytes}
	s.stores[name] = store
	return store, nil
}

func (s *LRUStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

func (s *LRUStorage) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	store, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()
	if ok {
		store.close()
	}
	return nil
}

func (s *LRUStorage) Close() error {
	s.mu.Lock()
	stores := s.stores
	s.stores = make(map[string]*LRUStore)
	s.mu.Unlock()
	for _, store := range stores {
		store.close()
	}
	return nil
}

type LRUStore struct {
	name           string
	entries        *lru.Cache[string, Snapshot]
	maxObjectBytes int64
	mu             sync.RWMutex
	closed         bool
}

func (l *LRUStore) Name() string {
	return l.name
}

func (l *LRUStore) Get(_ context.Context, key string) (Snapshot, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return Snapshot{}, false, ErrStoreClosed
	}
	entry, ok := l.entries.Get(key)
	if !ok {
		return Snapshot{}, false, nil
	}
	return entry.Clone(), true, nil
}

func (l *LRUStore) Put(_ context.Context, key string, snapshot Snapshot) error {
	if l.maxObjectBytes > 0 && int64(len(snapshot.Body)) > l.maxObjectBytes {
		return ErrObjectTooLarge
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStoreClosed
	}
	l.entries.Add(key, snapshot.Clone())
	return nil
}

func (l *LRUStore) Delete(_ context.Context, key string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStoreClosed
	}
	l.entries.Remove(key)
	return nil
}

func (l *LRUStore) Keys(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStoreClosed
	}
	keys := l.entries.Keys()
	sort.Strings(keys)
	return keys, nil
}

func (l *LRUStore) close() {
	l.mu.Lock()
	l.closed = true
	l.entries.Purge()
	l.mu.Unlock()
}
