package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
)

var errOffline = errors.New("dial tcp: network unreachable")

// countingFetcher answers from respond and counts calls per path.
type countingFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	total   int
	respond func(req gateway.Request) (cache.Snapshot, error)
}

func newCountingFetcher(respond func(req gateway.Request) (cache.Snapshot, error)) *countingFetcher {
	if respond == nil {
		respond = func(req gateway.Request) (cache.Snapshot, error) {
			return okSnapshot("net:" + req.URL.Path), nil
		}
	}
	return &countingFetcher{calls: make(map[string]int), respond: respond}
}

func (f *countingFetcher) Fetch(_ context.Context, req gateway.Request) (cache.Snapshot, error) {
	f.mu.Lock()
	f.calls[req.URL.Path]++
	f.total++
	f.mu.Unlock()
	return f.respond(req)
}

func (f *countingFetcher) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *countingFetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

type lookupFunc func(ctx context.Context, key string) (cache.Snapshot, bool, error)

func (f lookupFunc) Get(ctx context.Context, key string) (cache.Snapshot, bool, error) {
	return f(ctx, key)
}

func okSnapshot(body string) cache.Snapshot {
	return statusSnapshot(http.StatusOK, body)
}

func statusSnapshot(status int, body string) cache.Snapshot {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return cache.Snapshot{Status: status, Header: header, Body: []byte(body)}
}

func getRequest(t *testing.T, target string, dest gateway.Destination) gateway.Request {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse %q: %v", target, err)
	}
	return gateway.Request{Method: http.MethodGet, URL: u, Destination: dest, Header: http.Header{}}
}

func keyFor(t *testing.T, target string) string {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse %q: %v", target, err)
	}
	key, ok := cache.Identity(http.MethodGet, u)
	if !ok {
		t.Fatalf("no identity for %q", target)
	}
	return key
}

func mustOpen(t *testing.T, storage cache.Storage, name string) cache.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return store
}
