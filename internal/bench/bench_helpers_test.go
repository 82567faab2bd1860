package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/limits"
	"offline_gateway/internal/proxy"
	"offline_gateway/internal/transport"
)

func startBenchmarkGateway(b *testing.B, originURL string, assets []string) (*httptest.Server, *http.Client, func()) {
	b.Helper()
	fetcher, err := transport.NewHTTPFetcher(transport.FetcherConfig{Origin: originURL})
	if err != nil {
		b.Fatalf("fetcher: %v", err)
	}
	gw, err := gateway.New(gateway.Options{
		Config: gateway.Config{
			Prefix:         "bench",
			Version:        "v1",
			PrecacheAssets: assets,
			WriteBack:      true,
		},
		Storage:   cache.NewMemoryStorage(0),
		Fetcher:   fetcher,
		Coalescer: cache.NewCoalescer(0),
	})
	if err != nil {
		b.Fatalf("gateway: %v", err)
	}
	if _, err := gw.Install(context.Background()); err != nil {
		b.Fatalf("install: %v", err)
	}

	server := httptest.NewServer(&proxy.Handler{Gateway: gw, Limits: limits.Default()})
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	cleanup := func() {
		client.CloseIdleConnections()
		server.Close()
		_ = gw.Stop(context.Background())
		fetcher.CloseIdleConnections()
	}
	return server, client, cleanup
}

func buildRequest(rawURL string, dest gateway.Destination) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(gateway.SecFetchDestHeader, string(dest))
	return req, nil
}

func routeRequest(path string, dest gateway.Destination) gateway.Request {
	return gateway.Request{
		Method:      http.MethodGet,
		URL:         &url.URL{Path: path},
		Destination: dest,
		Header:      http.Header{},
	}
}
