package integration

import (
	"context"
	"net/http"
	"path/filepath"
	"sort"
	"testing"

	"offline_gateway/internal/cache/sqlitestore"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/proxy"
	"offline_gateway/internal/testutil"
)

func TestUpgradeIsolatesAndPrunesPreviousVersion(t *testing.T) {
	storage, err := sqlitestore.Open(filepath.Join(t.TempDir(), "cache.db"), 0)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer storage.Close()

	origin := testutil.StartOrigin(t, map[string]string{
		"/img/logo.png": "logo-v1",
		"/":             "home-v1",
	})
	v1 := startGateway(t, origin, harnessOptions{version: "v1", storage: storage, assets: []string{"/img/logo.png"}})
	v1.get(t, "/", gateway.DestinationDocument)
	if err := v1.server.Shutdown(); err != nil {
		t.Fatalf("shutdown v1: %v", err)
	}
	if v1.gateway.State() != gateway.StateStopped {
		t.Fatalf("expected stopped, got %s", v1.gateway.State())
	}

	origin.Set("/img/logo.png", "logo-v2")
	v2 := startGateway(t, origin, harnessOptions{version: "v2", storage: storage, assets: []string{"/img/logo.png"}})

	pruned := append([]string(nil), v2.install.Pruned...)
	sort.Strings(pruned)
	if len(pruned) != 2 || pruned[0] != "shop-assets-v1" || pruned[1] != "shop-pwa-v1" {
		t.Fatalf("expected v1 stores pruned, got %v", pruned)
	}
	names, err := storage.Names(context.Background())
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "shop-assets-v2" || names[1] != "shop-pwa-v2" {
		t.Fatalf("expected only v2 stores, got %v", names)
	}

	resp, body := v2.get(t, "/img/logo.png", gateway.DestinationImage)
	if body != "logo-v2" || resp.Header.Get(proxy.CacheHeader) != string(gateway.CacheHit) {
		t.Fatalf("expected v2 precached logo, got %q (%s)", body, resp.Header.Get(proxy.CacheHeader))
	}

	origin.Close()
	resp, _ = v2.get(t, "/", gateway.DestinationDocument)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected v1 document to be gone after upgrade, got %d", resp.StatusCode)
	}
}
