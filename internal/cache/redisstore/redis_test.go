package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/cache/cachetest"
)

func TestRedisStorage(t *testing.T) {
	cachetest.RunStorageSuite(t, func(t *testing.T) cache.Storage {
		server := miniredis.RunT(t)
		storage := New(Config{Addr: server.Addr()})
		t.Cleanup(func() { _ = storage.Close() })
		return storage
	})
}

func TestRedisStoragePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	storage := New(Config{Addr: server.Addr(), KeyPrefix: "shop:"})
	defer storage.Close()

	require.NoError(t, storage.Ping(ctx))
	store, err := storage.Open(ctx, "shop-assets-v1")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "m=GET|u=/hero.jpg", cachetest.Snapshot("hero")))

	require.True(t, server.Exists("shop:stores"))
	require.True(t, server.Exists("shop:store:shop-assets-v1"))
	members, err := server.Members("shop:stores")
	require.NoError(t, err)
	require.Equal(t, []string{"shop-assets-v1"}, members)
}

func TestRedisDropRemovesHash(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	storage := New(Config{Addr: server.Addr()})
	defer storage.Close()

	store, err := storage.Open(ctx, "shop-pwa-v1")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "m=GET|u=/", cachetest.Snapshot("index")))
	require.NoError(t, storage.Drop(ctx, "shop-pwa-v1"))

	require.False(t, server.Exists(DefaultKeyPrefix+"store:shop-pwa-v1"))
	require.ErrorIs(t, store.Put(ctx, "m=GET|u=/", cachetest.Snapshot("late")), cache.ErrStoreClosed)
}
