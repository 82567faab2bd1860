package gateway

import (
	"context"
	"errors"

	"offline_gateway/internal/cache"
)

// Fetcher performs the network side of a request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (cache.Snapshot, error)
}

type FetchFunc func(ctx context.Context, req Request) (cache.Snapshot, error)

func (f FetchFunc) Fetch(ctx context.Context, req Request) (cache.Snapshot, error) {
	return f(ctx, req)
}

// Lookup is the read-only view of a store the router gets. Routing never writes.
type Lookup interface {
	Get(ctx context.Context, key string) (cache.Snapshot, bool, error)
}

// Stores pairs the lookups for the two policies of the current version.
type Stores struct {
	Code   Lookup
	Assets Lookup
}

func (s Stores) For(policy Policy) Lookup {
	switch policy {
	case PolicyNetworkFirst:
		return s.Code
	case PolicyCacheFirst:
		return s.Assets
	default:
		return nil
	}
}

type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceNone    Source = "none"
)

type CacheStatus string

const (
	CacheHit      CacheStatus = "hit"
	CacheMiss     CacheStatus = "miss"
	CacheFallback CacheStatus = "fallback"
	CacheBypass   CacheStatus = "bypass"
	CacheError    CacheStatus = "error"
)

type RouteOptions struct {
	ControlScriptPath string
	Coalescer         *cache.Coalescer
	WriteBack         bool
}

// Outcome describes how one request was answered. It is filled in even when
// Route returns an error so callers can log it.
type Outcome struct {
	Key         string
	Policy      Policy
	Source      Source
	CacheStatus CacheStatus
	Snapshot    cache.Snapshot
	// WriteBack is set when Snapshot came from the network and should be stored
	// under Key in the policy's store.
	WriteBack  bool
	NetworkErr error
	LookupErr  error
	Coalesced  bool
}

// Route answers one request from the stores and the fetcher without mutating
// any store.
func Route(ctx context.Context, req Request, stores Stores, fetcher Fetcher, opts RouteOptions) (Outcome, error) {
	policy := Classify(req, opts.ControlScriptPath)
	out := Outcome{Policy: policy, Source: SourceNone, CacheStatus: CacheBypass}
	if fetcher == nil {
		return out, ErrNoFetcher
	}

	key, cacheable := cache.Identity(req.Method, req.URL)
	lookup := stores.For(policy)
	if !cacheable || lookup == nil {
		out.Policy = PolicyNetworkOnly
		return networkOnly(ctx, req, fetcher, out)
	}
	out.Key = key

	switch policy {
	case PolicyNetworkFirst:
		return networkFirst(ctx, req, lookup, fetcher, opts, out)
	default:
		return cacheFirst(ctx, req, lookup, fetcher, opts, out)
	}
}

func networkOnly(ctx context.Context, req Request, fetcher Fetcher, out Outcome) (Outcome, error) {
	snapshot, err := fetcher.Fetch(ctx, req)
	if err != nil {
		out.NetworkErr = err
		return out, err
	}
	out.Source = SourceNetwork
	out.Snapshot = snapshot
	return out, nil
}

func networkFirst(ctx context.Context, req Request, lookup Lookup, fetcher Fetcher, opts RouteOptions, out Outcome) (Outcome, error) {
	snapshot, err := fetcher.Fetch(ctx, req)
	if err == nil {
		out.Source = SourceNetwork
		out.CacheStatus = CacheMiss
		out.Snapshot = snapshot
		out.WriteBack = opts.WriteBack && Storable(req, snapshot)
		return out, nil
	}
	out.NetworkErr = err
	if ctx.Err() != nil {
		// the caller went away; nobody is waiting for a fallback
		return out, err
	}

	cached, ok, lookupErr := lookup.Get(ctx, out.Key)
	if lookupErr != nil {
		out.LookupErr = lookupErr
		out.CacheStatus = CacheError
		return out, err
	}
	if !ok {
		out.CacheStatus = CacheMiss
		return out, err
	}
	out.Source = SourceCache
	out.CacheStatus = CacheFallback
	out.Snapshot = cached
	return out, nil
}

func cacheFirst(ctx context.Context, req Request, lookup Lookup, fetcher Fetcher, opts RouteOptions, out Outcome) (Outcome, error) {
	cached, ok, lookupErr := lookup.Get(ctx, out.Key)
	if lookupErr != nil {
		out.LookupErr = lookupErr
		out.CacheStatus = CacheError
	} else if ok {
		out.Source = SourceCache
		out.CacheStatus = CacheHit
		out.Snapshot = cached
		return out, nil
	} else {
		out.CacheStatus = CacheMiss
	}

	shared := out.Key
	if partial(req.Header) {
		// a ranged or conditional answer must not reach plain callers
		shared = ""
	}
	snapshot, err, leader := fetchCoalesced(ctx, req, shared, fetcher, opts.Coalescer)
	out.Coalesced = !leader
	if err != nil {
		out.NetworkErr = err
		return out, err
	}
	out.Source = SourceNetwork
	out.Snapshot = snapshot
	out.WriteBack = opts.WriteBack && leader && Storable(req, snapshot)
	return out, nil
}

// fetchCoalesced shares one network call between concurrent misses on key.
// The boolean result reports whether this caller made the call itself.
func fetchCoalesced(ctx context.Context, req Request, key string, fetcher Fetcher, coalescer *cache.Coalescer) (cache.Snapshot, error, bool) {
	snapshot, led, err := coalescer.Do(ctx, key, func(ctx context.Context) (cache.Snapshot, error) {
		return fetcher.Fetch(ctx, req)
	})
	if !led && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// the leader's client hung up; do our own fetch
		snapshot, err = fetcher.Fetch(ctx, req)
		return snapshot, err, true
	}
	return snapshot, err, led
}
