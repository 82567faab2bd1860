package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"offline_gateway/internal/cache"
)

type InstallFailure struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// InstallResult lists what precaching achieved. A partial result is still a
// successful install.
type InstallResult struct {
	Version   string           `json:"version"`
	Populated []string         `json:"populated"`
	Failed    []InstallFailure `json:"failed"`
	Pruned    []string         `json:"pruned"`
}

// Install opens the stores of the current version, precaches the configured
// assets, and activates the gateway. Asset failures never fail the install.
// A gateway stopped while installing stays stopped and Install returns
// ErrStopped.
func (g *Gateway) Install(ctx context.Context) (InstallResult, error) {
	if !g.transition(StateUninstalled, StateInstalling) {
		return InstallResult{}, ErrAlreadyInstalled
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.InstallTimeout)
	defer cancel()

	codeName, assetsName := g.StoreNames()
	code, err := g.storage.Open(ctx, codeName.String())
	if err != nil {
		g.transition(StateInstalling, StateUninstalled)
		return InstallResult{}, fmt.Errorf("open store %s: %w", codeName, err)
	}
	assets, err := g.storage.Open(ctx, assetsName.String())
	if err != nil {
		g.transition(StateInstalling, StateUninstalled)
		return InstallResult{}, fmt.Errorf("open store %s: %w", assetsName, err)
	}

	stores := &epoch{code: code, assets: assets}
	result := g.precache(ctx, stores)
	result.Version = g.cfg.Version

	g.current.Store(stores)
	if !g.transition(StateInstalling, StateActive) {
		g.current.Store(nil)
		g.logger.Warn("install finished after stop, not activating", "populated", len(result.Populated))
		return result, ErrStopped
	}
	g.metrics.SetVersionInfo(g.cfg.Version)

	if g.cfg.PruneOnActivate {
		pruned, err := g.Prune(ctx)
		if err != nil {
			g.logger.Warn("pruning stale stores failed", "err", err)
		}
		result.Pruned = pruned
	}

	g.mu.Lock()
	installed := result
	g.installed = &installed
	g.mu.Unlock()

	g.logger.Info("gateway installed", "populated", len(result.Populated), "failed", len(result.Failed), "pruned", len(result.Pruned))
	return result, nil
}

func (g *Gateway) precache(ctx context.Context, stores *epoch) InstallResult {
	type outcome struct {
		key     string
		failure *InstallFailure
	}
	outcomes := make([]outcome, len(g.cfg.PrecacheAssets))

	var group errgroup.Group
	group.SetLimit(g.cfg.PrecacheConcurrency)
	for i, raw := range g.cfg.PrecacheAssets {
		i, raw := i, raw
		group.Go(func() error {
			key, failure := g.precacheOne(ctx, stores, raw)
			outcomes[i] = outcome{key: key, failure: failure}
			return nil
		})
	}
	_ = group.Wait()

	result := InstallResult{Populated: []string{}, Failed: []InstallFailure{}}
	for _, o := range outcomes {
		if o.failure != nil {
			result.Failed = append(result.Failed, *o.failure)
			g.metrics.RecordInstallAsset("failed")
			g.logger.Warn("precache failed", "url", o.failure.URL, "reason", o.failure.Reason)
			continue
		}
		result.Populated = append(result.Populated, o.key)
		g.metrics.RecordInstallAsset("populated")
	}
	return result
}

// precacheOne stores one asset where the router will look for it: documents
// and code in the code store, everything else in the assets store.
func (g *Gateway) precacheOne(ctx context.Context, stores *epoch, raw string) (string, *InstallFailure) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &InstallFailure{URL: raw, Reason: err.Error()}
	}
	key, _ := cache.Identity("GET", u)
	fail := func(reason string) (string, *InstallFailure) {
		return key, &InstallFailure{Key: key, URL: raw, Reason: reason}
	}

	req := Request{Method: "GET", URL: u, Destination: precacheDestination(u.Path), Header: http.Header{}}
	snapshot, err := g.fetcher.Fetch(ctx, req)
	if err != nil {
		return fail(fmt.Sprintf("fetch: %v", err))
	}
	if snapshot.Status != http.StatusOK {
		return fail(fmt.Sprintf("status %d", snapshot.Status))
	}
	if !Storable(req, snapshot) {
		return fail("response is private")
	}
	snapshot.StoredAt = time.Now().UTC()
	store := stores.storeFor(Classify(req, g.cfg.ControlScriptPath))
	if err := store.Put(ctx, key, snapshot); err != nil {
		return fail(fmt.Sprintf("store: %v", err))
	}
	return key, nil
}

// precacheDestination guesses the destination a browser would use for an
// asset. Extension-less paths are pages.
func precacheDestination(p string) Destination {
	if dest := destinationFromPath(p); dest != DestinationUnknown {
		return dest
	}
	if strings.HasSuffix(p, "/") || path.Ext(p) == "" {
		return DestinationDocument
	}
	return DestinationUnknown
}
