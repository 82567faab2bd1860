package gateway

import (
	"context"
	"fmt"
	"sort"

	"offline_gateway/internal/cache"
)

type StoreInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// ListStores reports every store in storage with its entry count, marking the
// ones named in current.
func ListStores(ctx context.Context, storage cache.Storage, current ...cache.StoreName) ([]StoreInfo, error) {
	names, err := storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	sort.Strings(names)
	owned := make(map[string]bool, len(current))
	for _, name := range current {
		owned[name.String()] = true
	}
	stores := make([]StoreInfo, 0, len(names))
	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open store %s: %w", name, err)
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("keys of %s: %w", name, err)
		}
		stores = append(stores, StoreInfo{Name: name, Entries: len(keys), Current: owned[name]})
	}
	return stores, nil
}

// PruneStores drops every store owned by prefix that is not in keep.
// It returns the dropped names even when a later drop fails.
func PruneStores(ctx context.Context, storage cache.Storage, prefix string, keep ...cache.StoreName) ([]string, error) {
	names, err := storage.Names(ctx)
	if err != nil {
		return []string{}, fmt.Errorf("list stores: %w", err)
	}
	pruned := []string{}
	for _, name := range cache.StaleNames(prefix, names, keep...) {
		if err := storage.Drop(ctx, name); err != nil {
			return pruned, fmt.Errorf("drop store %s: %w", name, err)
		}
		pruned = append(pruned, name)
	}
	return pruned, nil
}

// Prune drops every store under the gateway's prefix that the running version
// does not own.
func (g *Gateway) Prune(ctx context.Context) ([]string, error) {
	code, assets := g.StoreNames()
	pruned, err := PruneStores(ctx, g.storage, g.cfg.Prefix, code, assets)
	for _, name := range pruned {
		g.logger.Info("dropped stale cache store", "store", name)
	}
	g.metrics.RecordStoresPruned(len(pruned))
	return pruned, err
}
