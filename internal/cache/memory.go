package cache

import (
	"context"
	"sort"
	"sync"
)

type MemoryStorage struct {
	mu             sync.Mutex
	stores         map[string]*MemoryStore
	maxObjectBytes int64
}

func NewMemoryStorage(maxObjectBytes int64) *MemoryStorage {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &MemoryStorage{
		stores:         make(map[string]*MemoryStore),
		maxObjectBytes: maxObjectBytes,
	}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		return store, nil
	}
	store := NewMemoryStore(name, s.maxObjectBytes)
	s.stores[name] = store
	return store, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	store, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()
	if ok {
		store.close()
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	stores := s.stores
	s.stores = make(map[string]*MemoryStore)
	s.mu.Unlock()
	for _, store := range stores {
		store.close()
	}
	return nil
}

type MemoryStore struct {
	name           string
	mu             sync.RWMutex
	entries        map[string]Snapshot
	maxObjectBytes int64
	closed         bool
}

func NewMemoryStore(name string, maxObjectBytes int64) *MemoryStore {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &MemoryStore{
		name:           name,
		entries:        make(map[string]Snapshot),
		maxObjectBytes: maxObjectBytes,
	}
}

func (m *MemoryStore) Name() string {
	return m.name
}

func (m *MemoryStore) Get(_ context.Context, key string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Snapshot{}, false, ErrStoreClosed
	}
	entry, ok := m.entries[key]
	if !ok {
		return Snapshot{}, false, nil
	}
	return entry.Clone(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, snapshot Snapshot) error {
	if m.maxObjectBytes > 0 && int64(len(snapshot.Body)) > m.maxObjectBytes {
		return ErrObjectTooLarge
	}
	entry := snapshot.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) close() {
	m.mu.Lock()
	m.closed = true
	m.entries = make(map[string]Snapshot)
	m.mu.Unlock()
}
