// Package cachetest holds the behavior every cache.Storage backend must share.
package cachetest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offline_gateway/internal/cache"
)

func Snapshot(body string) cache.Snapshot {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return cache.Snapshot{
		Status:   http.StatusOK,
		Header:   header,
		Body:     []byte(body),
		StoredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// RunStorageSuite exercises a fresh storage returned by newStorage for each subtest.
func RunStorageSuite(t *testing.T, newStorage func(t *testing.T) cache.Storage) {
	t.Helper()

	t.Run("miss on empty store", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		store, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		require.Equal(t, "shop-assets-v1", store.Name())

		_, ok, err := store.Get(ctx, "m=GET|u=/missing.png")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		store, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)

		want := Snapshot("hero")
		require.NoError(t, store.Put(ctx, "m=GET|u=/hero.jpg", want))

		got, ok, err := store.Get(ctx, "m=GET|u=/hero.jpg")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want.Status, got.Status)
		require.Equal(t, want.Body, got.Body)
		require.Equal(t, "text/plain", got.Header.Get("Content-Type"))
		require.True(t, want.StoredAt.Equal(got.StoredAt))
	})

	t.Run("put overwrites one entry", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		store, err := storage.Open(ctx, "shop-pwa-v1")
		require.NoError(t, err)

		for _, body := range []string{"one", "two", "three"} {
			require.NoError(t, store.Put(ctx, "m=GET|u=/", Snapshot(body)))
		}
		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"m=GET|u=/"}, keys)

		got, ok, err := store.Get(ctx, "m=GET|u=/")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "three", string(got.Body))
	})

	t.Run("returned snapshot is a copy", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		store, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "k", Snapshot("original")))

		got, _, err := store.Get(ctx, "k")
		require.NoError(t, err)
		got.Body[0] = 'X'
		got.Header.Set("Content-Type", "changed")

		again, _, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "original", string(again.Body))
		require.Equal(t, "text/plain", again.Header.Get("Content-Type"))
	})

	t.Run("delete removes entry", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		store, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "k", Snapshot("v")))
		require.NoError(t, store.Delete(ctx, "k"))
		require.NoError(t, store.Delete(ctx, "never-there"))

		_, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("stores are isolated by name", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		v1, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		v2, err := storage.Open(ctx, "shop-assets-v2")
		require.NoError(t, err)

		require.NoError(t, v1.Put(ctx, "k", Snapshot("from v1")))
		_, ok, err := v2.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, v2.Put(ctx, "k", Snapshot("from v2")))
		got, ok, err := v1.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "from v1", string(got.Body))
	})

	t.Run("names and drop", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		_, err := storage.Open(ctx, "shop-pwa-v1")
		require.NoError(t, err)
		old, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		require.NoError(t, old.Put(ctx, "k", Snapshot("v")))

		names, err := storage.Names(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"shop-pwa-v1", "shop-assets-v1"}, names)

		require.NoError(t, storage.Drop(ctx, "shop-assets-v1"))
		names, err = storage.Names(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"shop-pwa-v1"}, names)

		reopened, err := storage.Open(ctx, "shop-assets-v1")
		require.NoError(t, err)
		_, ok, err := reopened.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		storage := newStorage(t)
		_, err := storage.Open(context.Background(), "")
		require.Error(t, err)
	})
}
