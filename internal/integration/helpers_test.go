package integration

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/limits"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/proxy"
	"offline_gateway/internal/runtime"
	"offline_gateway/internal/server"
	"offline_gateway/internal/testutil"
	"offline_gateway/internal/transport"
)

type harness struct {
	gateway  *gateway.Gateway
	storage  cache.Storage
	metrics  *obs.Metrics
	server   *server.Server
	client   *http.Client
	baseURL  string
	install  gateway.InstallResult
	inflight *runtime.InflightTracker
}

type harnessOptions struct {
	version  string
	assets   []string
	storage  cache.Storage
	tls      *tls.Config
	skipInst bool
}

func startGateway(t *testing.T, origin *testutil.Origin, opts harnessOptions) *harness {
	t.Helper()
	if opts.version == "" {
		opts.version = "v1"
	}
	storage := opts.storage
	if storage == nil {
		storage = cache.NewMemoryStorage(0)
	}
	metrics := obs.NewMetrics()
	fetcher, err := transport.NewHTTPFetcher(transport.FetcherConfig{
		Origin:  origin.URL,
		Timeout: 2 * time.Second,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	inflight := runtime.NewInflightTracker()
	gw, err := gateway.New(gateway.Options{
		Config: gateway.Config{
			Prefix:          "shop",
			Version:         opts.version,
			PrecacheAssets:  opts.assets,
			WriteBack:       true,
			PruneOnActivate: true,
		},
		Storage:   storage,
		Fetcher:   fetcher,
		Coalescer: cache.NewCoalescer(0),
		Metrics:   metrics,
		Inflight:  inflight,
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", &proxy.Handler{Gateway: gw, Metrics: metrics, Limits: limits.Default()})

	httpAddr, tlsAddr := "127.0.0.1:0", ""
	scheme := "http"
	if opts.tls != nil {
		httpAddr, tlsAddr = "", "127.0.0.1:0"
		scheme = "https"
	}
	srv, err := server.StartServers(mux, opts.tls, httpAddr, tlsAddr, server.Options{
		Shutdown: runtime.ShutdownConfig{
			Drain:           10 * time.Millisecond,
			GracefulTimeout: 2 * time.Second,
			ForceClose:      10 * time.Millisecond,
		},
		Inflight:  inflight,
		Stoppers:  []server.Stopper{gw},
		CloseIdle: []func(){fetcher.CloseIdleConnections},
	})
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown() })

	addr := srv.HTTPAddr
	if opts.tls != nil {
		addr = srv.TLSAddr
	}
	h := &harness{
		gateway:  gw,
		storage:  storage,
		metrics:  metrics,
		server:   srv,
		client:   &http.Client{Timeout: 3 * time.Second},
		baseURL:  scheme + "://" + addr,
		inflight: inflight,
	}
	if !opts.skipInst {
		h.install, err = gw.Install(context.Background())
		if err != nil {
			t.Fatalf("install: %v", err)
		}
	}
	return h
}

// get requests path with the given fetch destination and returns the
// response with its body already read.
func (h *harness) get(t *testing.T, path string, dest gateway.Destination) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if dest != gateway.DestinationUnknown {
		req.Header.Set(gateway.SecFetchDestHeader, string(dest))
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp, string(body)
}

func (h *harness) waitForEntry(t *testing.T, storeName cache.StoreName, path string) {
	t.Helper()
	store, err := h.storage.Open(context.Background(), storeName.String())
	if err != nil {
		t.Fatalf("open %s: %v", storeName, err)
	}
	key := "m=GET|u=" + path
	testutil.WaitFor(t, "write-back of "+key, func() error {
		_, ok, err := store.Get(context.Background(), key)
		if err != nil {
			return err
		}
		if !ok {
			return errNotStored(key)
		}
		return nil
	})
}

type errNotStored string

func (e errNotStored) Error() string {
	return "not stored: " + string(e)
}

func fetchMetrics(t *testing.T, h *harness) string {
	t.Helper()
	resp, body := h.get(t, "/metrics", gateway.DestinationUnknown)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	return body
}

// metricValue sums every sample of name whose labels include all of labels.
func metricValue(text string, name string, labels ...string) (float64, bool) {
	total := 0.0
	found := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line != name && !strings.HasPrefix(line, name+"{") && !strings.HasPrefix(line, name+" ") {
			continue
		}
		matched := true
		for _, label := range labels {
			if !strings.Contains(line, label) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		parts := strings.Fields(line)
		value, err := strconv.ParseFloat(parts[len(parts)-1], 64)
		if err != nil {
			return 0, false
		}
		found = true
		total += value
	}
	return total, found
}
