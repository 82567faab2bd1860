package gateway_test

import (
	"context"
	"testing"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
)

func TestListStoresCountsEntriesAndMarksCurrent(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	old := mustOpen(t, storage, "shop-assets-v1")
	_ = old.Put(context.Background(), keyFor(t, "/a.png"), okSnapshot("a"))
	_ = old.Put(context.Background(), keyFor(t, "/b.png"), okSnapshot("b"))
	mustOpen(t, storage, "shop-assets-v2")

	current := cache.StoreName{Prefix: "shop", Kind: cache.KindAssets, Version: "v2"}
	stores, err := gateway.ListStores(context.Background(), storage, current)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("expected two stores, got %+v", stores)
	}
	if stores[0].Name != "shop-assets-v1" || stores[0].Entries != 2 || stores[0].Current {
		t.Fatalf("unexpected old store %+v", stores[0])
	}
	if stores[1].Name != "shop-assets-v2" || stores[1].Entries != 0 || !stores[1].Current {
		t.Fatalf("unexpected current store %+v", stores[1])
	}
}

func TestPruneStoresKeepsOtherPrefixes(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	for _, name := range []string{"shop-pwa-v1", "shop-pwa-v2", "blog-pwa-v1"} {
		mustOpen(t, storage, name)
	}
	keep := cache.StoreName{Prefix: "shop", Kind: cache.KindCode, Version: "v2"}
	pruned, err := gateway.PruneStores(context.Background(), storage, "shop", keep)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != "shop-pwa-v1" {
		t.Fatalf("unexpected pruned %v", pruned)
	}
	names, _ := storage.Names(context.Background())
	if len(names) != 2 {
		t.Fatalf("expected two stores left, got %v", names)
	}
}
