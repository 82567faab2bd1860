package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
)

const testToken = "s3cret"

func newAdmin(t *testing.T) (http.Handler, *gateway.Gateway, cache.Storage) {
	t.Helper()
	storage := cache.NewMemoryStorage(0)
	fetcher := gateway.FetchFunc(func(_ context.Context, req gateway.Request) (cache.Snapshot, error) {
		return cache.Snapshot{Status: http.StatusOK, Header: http.Header{}, Body: []byte(req.URL.Path)}, nil
	})
	metrics := obs.NewMetrics()
	gw, err := gateway.New(gateway.Options{
		Config:  gateway.Config{Prefix: "shop", Version: "v2", PrecacheAssets: []string{"/logo.png"}},
		Storage: storage,
		Fetcher: fetcher,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	auth, err := NewAuthenticator(AuthConfig{Token: testToken})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	handler := NewHandler(HandlerConfig{
		Gateway:     gw,
		Storage:     storage,
		Auth:        auth,
		RateLimiter: NewRateLimiter(RateLimitConfig{RPS: 100, Burst: 100, MaxFailures: 3}),
		Metrics:     metrics,
	})
	return handler, gw, storage
}

func call(h http.Handler, method string, path string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresToken(t *testing.T) {
	h, _, _ := newAdmin(t)
	if rec := call(h, http.MethodGet, "/admin/state", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := call(h, http.MethodGet, "/admin/state", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := call(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("metrics must be protected, got %d", rec.Code)
	}
}

func TestAdminBlocksRepeatedFailures(t *testing.T) {
	h, _, _ := newAdmin(t)
	for i := 0; i < 3; i++ {
		call(h, http.MethodGet, "/admin/state", "wrong")
	}
	if rec := call(h, http.MethodGet, "/admin/state", testToken); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected client to be blocked, got %d", rec.Code)
	}
}

func TestAdminInstallAndState(t *testing.T) {
	h, _, _ := newAdmin(t)

	if rec := call(h, http.MethodGet, "/admin/install", testToken); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before install, got %d", rec.Code)
	}
	rec := call(h, http.MethodPost, "/admin/install", testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("install: %d %s", rec.Code, rec.Body.String())
	}
	var result gateway.InstallResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode install: %v", err)
	}
	if result.Version != "v2" || len(result.Populated) != 1 {
		t.Fatalf("unexpected install result %+v", result)
	}
	if rec := call(h, http.MethodPost, "/admin/install", testToken); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second install, got %d", rec.Code)
	}

	rec = call(h, http.MethodGet, "/admin/state", testToken)
	var state StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.State != "active" || state.AssetStore != "shop-assets-v2" || state.Install == nil {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestAdminStoresAndPrune(t *testing.T) {
	h, _, storage := newAdmin(t)
	if _, err := storage.Open(context.Background(), "shop-assets-v1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	rec := call(h, http.MethodGet, "/admin/stores", testToken)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shop-assets-v1") {
		t.Fatalf("unexpected stores response %d %s", rec.Code, rec.Body.String())
	}

	rec = call(h, http.MethodPost, "/admin/stores/prune", testToken)
	var pruned PruneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pruned); err != nil {
		t.Fatalf("decode prune: %v", err)
	}
	if len(pruned.Pruned) != 1 || pruned.Pruned[0] != "shop-assets-v1" {
		t.Fatalf("unexpected prune result %+v", pruned)
	}
	if rec := call(h, http.MethodGet, "/admin/stores/prune", testToken); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAdminMetricsWithToken(t *testing.T) {
	h, _, _ := newAdmin(t)
	rec := call(h, http.MethodGet, "/metrics", testToken)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gateway_state") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}

func TestAdminReadTokenCannotMutate(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	gw, err := gateway.New(gateway.Options{
		Config:  gateway.Config{Prefix: "shop", Version: "v2"},
		Storage: storage,
		Fetcher: gateway.FetchFunc(func(context.Context, gateway.Request) (cache.Snapshot, error) {
			return cache.Snapshot{Status: http.StatusOK}, nil
		}),
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	auth, err := NewAuthenticator(AuthConfig{Token: testToken, ReadToken: "viewer"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	h := NewHandler(HandlerConfig{Gateway: gw, Storage: storage, Auth: auth, Metrics: obs.NewMetrics()})

	if rec := call(h, http.MethodGet, "/admin/state", "viewer"); rec.Code != http.StatusOK {
		t.Fatalf("reader should see state, got %d", rec.Code)
	}
	if rec := call(h, http.MethodPost, "/admin/install", "viewer"); rec.Code != http.StatusForbidden {
		t.Fatalf("reader must not install, got %d", rec.Code)
	}
	if rec := call(h, http.MethodPost, "/admin/install", testToken); rec.Code != http.StatusOK {
		t.Fatalf("operator install: %d", rec.Code)
	}
}

func TestNewAuthenticatorRejectsSharedTokens(t *testing.T) {
	if _, err := NewAuthenticator(AuthConfig{Token: "same", ReadToken: "same"}); err == nil {
		t.Fatalf("expected error when read token equals operator token")
	}
	if _, err := NewAuthenticator(AuthConfig{}); err == nil {
		t.Fatalf("expected error without token")
	}
}
