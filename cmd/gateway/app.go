package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/breaker"
	"offline_gateway/internal/cache"
	"offline_gateway/internal/cache/leveldbstore"
	"offline_gateway/internal/cache/redisstore"
	"offline_gateway/internal/cache/sqlitestore"
	"offline_gateway/internal/config"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/runtime"
	"offline_gateway/internal/transport"
)

const redisPingTimeout = 3 * time.Second

// app holds everything built from one config load.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	metrics  *obs.Metrics
	storage  cache.Storage
	fetcher  *transport.HTTPFetcher
	gateway  *gateway.Gateway
	inflight *runtime.InflightTracker
	closers  []io.Closer
}

func loadApp(flags *rootFlags) (*app, error) {
	cfg, warnings, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		logger.Warn("config warning", "warning", warning)
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}
	return a, nil
}

func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	metrics := obs.NewMetrics()

	storage, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	fetcher, err := transport.NewHTTPFetcher(transport.FetcherConfig{
		Origin:         cfg.Origin,
		Timeout:        cfg.Timeouts.Network(),
		MaxObjectBytes: cfg.Storage.MaxObjectBytes,
		Breaker:        originBreaker(cfg.OriginBreaker, metrics, logger),
		Metrics:        metrics,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	inflight := runtime.NewInflightTracker()
	gw, err := gateway.New(gateway.Options{
		Config:    gatewayConfig(cfg),
		Storage:   storage,
		Fetcher:   fetcher,
		Coalescer: cache.NewCoalescer(cache.DefaultMaxWaiters),
		Metrics:   metrics,
		Logger:    logger.New("module", "gateway"),
		Inflight:  inflight,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		storage:  storage,
		fetcher:  fetcher,
		gateway:  gw,
		inflight: inflight,
	}, nil
}

func (a *app) Close() error {
	err := a.storage.Close()
	for _, closer := range a.closers {
		_ = closer.Close()
	}
	return err
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		Prefix:              cfg.StorePrefix,
		Version:             cfg.Version,
		ControlScriptPath:   cfg.ControlScriptPath,
		PrecacheAssets:      cfg.PrecacheAssets,
		PrecacheConcurrency: cfg.PrecacheConcurrency,
		WriteBack:           !cfg.DisableWriteBack,
		PruneOnActivate:     !cfg.KeepStaleStores,
		InstallTimeout:      cfg.Timeouts.Install(),
		WriteBackTimeout:    cfg.Timeouts.WriteBack(),
	}
}

func originBreaker(cfg config.BreakerConfig, metrics *obs.Metrics, logger logging.Logger) *breaker.Breaker {
	if !cfg.Enabled {
		return nil
	}
	logger = logger.New("module", "breaker")
	return breaker.New(breaker.Config{
		FailureRatePercent: cfg.FailureRatePercent,
		MinimumRequests:    cfg.MinimumRequests,
		Window:             time.Duration(cfg.WindowMS) * time.Millisecond,
		OpenDuration:       time.Duration(cfg.OpenMS) * time.Millisecond,
		HalfOpenProbes:     cfg.HalfOpenProbes,
		OnStateChange: func(from breaker.State, to breaker.State) {
			logger.Warn("origin breaker changed state", "from", from.String(), "to", to.String())
			metrics.RecordBreakerTransition(to.String())
		},
	})
}

func openStorage(cfg config.StorageConfig) (cache.Storage, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return cache.NewMemoryStorage(cfg.MaxObjectBytes), nil
	case config.BackendLRU:
		return cache.NewLRUStorage(cfg.LRUSize, cfg.MaxObjectBytes), nil
	case config.BackendLevelDB:
		storage, err := leveldbstore.Open(cfg.Path, cfg.MaxObjectBytes)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case config.BackendSQLite:
		storage, err := sqlitestore.Open(cfg.Path, cfg.MaxObjectBytes)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case config.BackendRedis:
		storage := redisstore.New(redisstore.Config{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			KeyPrefix:      cfg.Redis.KeyPrefix,
			MaxObjectBytes: cfg.MaxObjectBytes,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := storage.Ping(ctx); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newLogger writes to stderr unless log.output names stdout or a file.
func newLogger(cfg config.LogConfig) (logging.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		out = f
		closer = f
	}
	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.Level, Format: cfg.Format, Output: out})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return logger, closer, nil
}
