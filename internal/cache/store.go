package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const DefaultMaxObjectBytes int64 = 50 * 1024 * 1024

var (
	ErrStoreClosed    = errors.New("cache store closed")
	ErrObjectTooLarge = errors.New("cache entry exceeds max object bytes")
	ErrInvalidName    = errors.New("cache store name is empty")
)

// Snapshot is a stored response. Stores copy snapshots on the way in and out,
// so a value returned by Get is never changed by a later Put.
type Snapshot struct {
	Status   int         `msgpack:"status"`
	Header   http.Header `msgpack:"header"`
	Body     []byte      `msgpack:"body"`
	StoredAt time.Time   `msgpack:"stored_at"`
}

func (s Snapshot) Clone() Snapshot {
	clone := Snapshot{Status: s.Status, StoredAt: s.StoredAt}
	if s.Header != nil {
		clone.Header = s.Header.Clone()
	}
	if s.Body != nil {
		clone.Body = make([]byte, len(s.Body))
		copy(clone.Body, s.Body)
	}
	return clone
}

func (s Snapshot) OK() bool {
	return s.Status >= 200 && s.Status < 300
}

// Store is one named key-value container of snapshots.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (Snapshot, bool, error)
	Put(ctx context.Context, key string, snapshot Snapshot) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds every named store of a backend. Open creates a store on first use.
type Storage interface {
	Open(ctx context.Context, name string) (Store, error)
	Names(ctx context.Context) ([]string, error)
	Drop(ctx context.Context, name string) error
	Close() error
}
