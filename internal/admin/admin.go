package admin

import (
	"crypto/tls"
	"errors"
	"net/http"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
)

type HandlerConfig struct {
	Gateway     *gateway.Gateway
	Storage     cache.Storage
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Metrics     *obs.Metrics
	Logger      logging.Logger
}

// NewHandler serves the authenticated admin API: lifecycle state, store
// inspection, pruning and metrics.
func NewHandler(cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = obs.NopLogger()
	}
	h := &handler{
		gateway:     cfg.Gateway,
		storage:     cfg.Storage,
		auth:        cfg.Auth,
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/state", h.handleState)
	mux.HandleFunc("/admin/install", h.handleInstall)
	mux.HandleFunc("/admin/stores", h.handleStores)
	mux.HandleFunc("/admin/stores/prune", h.handlePrune)
	mux.Handle("/metrics", cfg.Metrics.Handler())
	h.mux = mux
	return h
}

// TLSConfig builds the admin listener TLS config. Client certificates are
// requested only when a client CA is configured.
func TLSConfig(certFile string, keyFile string, clientCAFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("admin cert and key are required")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}
	if clientCAFile != "" {
		pool, err := loadCertPool(clientCAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequestClientCert
	}
	return cfg, nil
}
