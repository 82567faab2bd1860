package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/runtime"
)

const (
	DefaultPrecacheConcurrency = 4
	DefaultInstallTimeout      = 30 * time.Second
	DefaultWriteBackTimeout    = 5 * time.Second
)

type Config struct {
	Prefix              string
	Version             string
	ControlScriptPath   string
	PrecacheAssets      []string
	PrecacheConcurrency int
	WriteBack           bool
	PruneOnActivate     bool
	InstallTimeout      time.Duration
	WriteBackTimeout    time.Duration
}

type Options struct {
	Config    Config
	Storage   cache.Storage
	Fetcher   Fetcher
	Coalescer *cache.Coalescer
	Metrics   *obs.Metrics
	Logger    logging.Logger
	Inflight  *runtime.InflightTracker
}

// epoch is the pair of stores owned by the running version.
type epoch struct {
	code   cache.Store
	assets cache.Store
}

func (e *epoch) lookups() Stores {
	return Stores{Code: timedLookup{e.code}, Assets: timedLookup{e.assets}}
}

// timedLookup records lookup time on the request timeline.
type timedLookup struct {
	store cache.Store
}

func (l timedLookup) Get(ctx context.Context, key string) (cache.Snapshot, bool, error) {
	defer obs.Track(ctx, obs.StageLookup)()
	return l.store.Get(ctx, key)
}

func (e *epoch) storeFor(policy Policy) cache.Store {
	if policy == PolicyNetworkFirst {
		return e.code
	}
	return e.assets
}

type Gateway struct {
	cfg       Config
	storage   cache.Storage
	fetcher   Fetcher
	coalescer *cache.Coalescer
	metrics   *obs.Metrics
	logger    logging.Logger
	inflight  *runtime.InflightTracker

	state   atomic.Int32
	current atomic.Pointer[epoch]

	mu        sync.Mutex
	observers []func(State)
	installed *InstallResult
}

func New(opts Options) (*Gateway, error) {
	if opts.Storage == nil {
		return nil, errors.New("gateway storage is nil")
	}
	if opts.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	cfg := opts.Config
	if cfg.Prefix == "" || cfg.Version == "" {
		return nil, errors.New("gateway prefix and version are required")
	}
	if cfg.ControlScriptPath == "" {
		cfg.ControlScriptPath = DefaultControlScriptPath
	}
	if cfg.PrecacheConcurrency <= 0 {
		cfg.PrecacheConcurrency = DefaultPrecacheConcurrency
	}
	if cfg.InstallTimeout <= 0 {
		cfg.InstallTimeout = DefaultInstallTimeout
	}
	if cfg.WriteBackTimeout <= 0 {
		cfg.WriteBackTimeout = DefaultWriteBackTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = obs.NopLogger()
	}
	inflight := opts.Inflight
	if inflight == nil {
		inflight = runtime.NewInflightTracker()
	}
	g := &Gateway{
		cfg:       cfg,
		storage:   opts.Storage,
		fetcher:   opts.Fetcher,
		coalescer: opts.Coalescer,
		metrics:   opts.Metrics,
		logger:    logger.New("version", cfg.Version),
		inflight:  inflight,
	}
	g.metrics.SetGatewayState(StateUninstalled.String())
	return g, nil
}

func (g *Gateway) State() State {
	return State(g.state.Load())
}

func (g *Gateway) Version() string {
	return g.cfg.Version
}

// StoreNames returns the names of the stores the running version owns.
func (g *Gateway) StoreNames() (cache.StoreName, cache.StoreName) {
	code := cache.StoreName{Prefix: g.cfg.Prefix, Kind: cache.KindCode, Version: g.cfg.Version}
	assets := cache.StoreName{Prefix: g.cfg.Prefix, Kind: cache.KindAssets, Version: g.cfg.Version}
	return code, assets
}

// OnStateChange registers fn and calls it with the current state right away.
func (g *Gateway) OnStateChange(fn func(State)) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
	fn(g.State())
}

// transition moves from one state to the next only if nothing else moved the
// gateway in between.
func (g *Gateway) transition(from, next State) bool {
	if !g.state.CompareAndSwap(int32(from), int32(next)) {
		return false
	}
	g.announce(next)
	return true
}

func (g *Gateway) announce(next State) {
	g.metrics.SetGatewayState(next.String())
	g.mu.Lock()
	observers := append([]func(State){}, g.observers...)
	g.mu.Unlock()
	for _, fn := range observers {
		fn(next)
	}
	g.logger.Info("gateway state changed", "state", next.String())
}

// LastInstall returns the result of the install that activated the gateway.
func (g *Gateway) LastInstall() (InstallResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.installed == nil {
		return InstallResult{}, false
	}
	return *g.installed, true
}

// Handle intercepts one request. Before activation every request goes straight
// to the network.
func (g *Gateway) Handle(ctx context.Context, req Request) (Outcome, error) {
	current := g.current.Load()
	if g.State() != StateActive || current == nil {
		return Route(ctx, req, Stores{}, g.fetcher, RouteOptions{ControlScriptPath: g.cfg.ControlScriptPath})
	}

	out, err := Route(ctx, req, current.lookups(), g.fetcher, RouteOptions{
		ControlScriptPath: g.cfg.ControlScriptPath,
		Coalescer:         g.coalescer,
		WriteBack:         g.cfg.WriteBack,
	})
	if out.Policy != PolicyNetworkOnly {
		g.metrics.RecordCacheRequest(storeKind(out.Policy), string(out.CacheStatus))
	}
	if out.LookupErr != nil {
		g.logger.Warn("cache lookup failed, treating as miss", "request_id", obs.RequestID(ctx), "key", out.Key, "err", out.LookupErr)
	}
	if out.NetworkErr != nil {
		g.metrics.RecordNetworkError(ClassifyError(out.NetworkErr))
	}
	if out.WriteBack {
		g.writeBack(current.storeFor(out.Policy), out.Policy, out.Key, out.Snapshot)
	}
	return out, err
}

func (g *Gateway) writeBack(store cache.Store, policy Policy, key string, snapshot cache.Snapshot) {
	if store == nil || g.State() == StateStopped {
		return
	}
	g.inflight.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteBackTimeout)
		defer cancel()

		snapshot.StoredAt = time.Now().UTC()
		err := store.Put(ctx, key, snapshot)
		result := "ok"
		switch {
		case errors.Is(err, cache.ErrObjectTooLarge):
			result = "too_large"
		case errors.Is(err, cache.ErrStoreClosed):
			result = "closed"
		case err != nil:
			result = "error"
		}
		g.metrics.RecordWriteBack(storeKind(policy), result)
		if err != nil {
			g.logger.Warn("cache write-back failed", "store", store.Name(), "key", key, "err", err)
			return
		}
		g.logger.Debug("cache write-back", "store", store.Name(), "key", key, "status", snapshot.Status)
	})
}

// PendingWriteBacks reports write-backs that have not finished yet.
func (g *Gateway) PendingWriteBacks() int {
	return g.inflight.Pending()
}

// Wait blocks until pending write-backs finish or ctx ends.
func (g *Gateway) Wait(ctx context.Context) error {
	return g.inflight.Wait(ctx)
}

// Stop refuses new write-backs and waits for the pending ones.
func (g *Gateway) Stop(ctx context.Context) error {
	if State(g.state.Swap(int32(StateStopped))) != StateStopped {
		g.announce(StateStopped)
	}
	return g.inflight.Wait(ctx)
}

func storeKind(policy Policy) string {
	if policy == PolicyNetworkFirst {
		return cache.KindCode
	}
	return cache.KindAssets
}
