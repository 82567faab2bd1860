package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"offline_gateway/internal/breaker"
	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
)

const DefaultNetworkTimeout = 10 * time.Second

// Hop-by-hop headers are never forwarded nor stored.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type FetcherConfig struct {
	Origin         string
	Timeout        time.Duration
	MaxObjectBytes int64
	Options        Options
	// RoundTripper replaces the transport built from Options.
	RoundTripper http.RoundTripper
	// Breaker, when set, fails calls fast while the origin is unreachable.
	Breaker *breaker.Breaker
	Metrics *obs.Metrics
}

// HTTPFetcher forwards requests to the origin and buffers the whole response
// into a snapshot so it can be both served and stored.
type HTTPFetcher struct {
	origin   *url.URL
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	breaker  *breaker.Breaker
	metrics  *obs.Metrics
}

func NewHTTPFetcher(cfg FetcherConfig) (*HTTPFetcher, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("origin scheme must be http or https, got %q", origin.Scheme)
	}
	if origin.Host == "" {
		return nil, errors.New("origin host is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	roundTripper := cfg.RoundTripper
	if roundTripper == nil {
		opts := cfg.Options
		if opts == (Options{}) {
			opts = OptionsFor(timeout)
		}
		roundTripper = NewTransport(opts)
	}
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = cache.DefaultMaxObjectBytes
	}
	return &HTTPFetcher{
		origin: origin,
		client: &http.Client{
			Transport: roundTripper,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:  timeout,
		maxBytes: maxBytes,
		breaker:  cfg.Breaker,
		metrics:  cfg.Metrics,
	}, nil
}

func (f *HTTPFetcher) Origin() string {
	return f.origin.String()
}

// CloseIdleConnections is run by the server once listeners have drained.
func (f *HTTPFetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req gateway.Request) (cache.Snapshot, error) {
	if req.URL == nil {
		return cache.Snapshot{}, errors.New("request url is nil")
	}
	if !f.breaker.Allow() {
		return cache.Snapshot{}, gateway.ErrOriginUnavailable
	}
	snapshot, err := f.fetch(ctx, req)
	if err == nil || errors.Is(err, gateway.ErrResponseTooLarge) {
		f.breaker.Report(true)
	} else if ctx.Err() == nil {
		f.breaker.Report(false)
	} else {
		f.breaker.Abandon()
	}
	return snapshot, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, req gateway.Request) (cache.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := *f.origin
	target.Path = strings.TrimSuffix(f.origin.Path, "/") + req.URL.Path
	target.RawPath = ""
	if req.URL.RawPath != "" {
		target.RawPath = strings.TrimSuffix(f.origin.EscapedPath(), "/") + req.URL.RawPath
	}
	target.RawQuery = req.URL.RawQuery
	target.Fragment = ""

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	outbound, err := http.NewRequestWithContext(ctx, method, target.String(), req.Body)
	if err != nil {
		return cache.Snapshot{}, err
	}
	if req.Header != nil {
		outbound.Header = req.Header.Clone()
	}
	removeHopHeaders(outbound.Header)
	// snapshots are stored decoded; the transport negotiates gzip on its own
	outbound.Header.Del("Accept-Encoding")
	setForwardedHeaders(outbound, req)
	obs.InjectRequestID(outbound, ctx)

	stop := obs.Track(ctx, obs.StageNetwork)
	start := time.Now()
	resp, err := f.client.Do(outbound)
	if err != nil {
		stop()
		f.metrics.ObserveNetworkRoundTrip(time.Since(start))
		return cache.Snapshot{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	stop()
	f.metrics.ObserveNetworkRoundTrip(time.Since(start))
	if err != nil {
		return cache.Snapshot{}, err
	}
	if int64(len(body)) > f.maxBytes {
		return cache.Snapshot{}, gateway.ErrResponseTooLarge
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	if method == http.MethodHead && resp.ContentLength >= 0 && header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	return cache.Snapshot{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

func setForwardedHeaders(outbound *http.Request, inbound gateway.Request) {
	clientIP := inbound.RemoteAddr
	if host, _, err := net.SplitHostPort(inbound.RemoteAddr); err == nil {
		clientIP = host
	}

	if clientIP != "" {
		prior := outbound.Header.Get("X-Forwarded-For")
		if prior != "" {
			clientIP = prior + ", " + clientIP
		}
		outbound.Header.Set("X-Forwarded-For", clientIP)
	}

	proto := "http"
	if inbound.TLS {
		proto = "https"
	}
	outbound.Header.Set("X-Forwarded-Proto", proto)
}

func removeHopHeaders(header http.Header) {
	if header == nil {
		return
	}
	for _, value := range header.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		header.Del(name)
	}
}
