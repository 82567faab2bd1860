package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"offline_gateway/internal/admin"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/health"
	"offline_gateway/internal/limits"
	"offline_gateway/internal/proxy"
	"offline_gateway/internal/runtime"
	"offline_gateway/internal/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve intercepted requests and install the configured version in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	lim, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		return err
	}
	shutdown, err := runtime.ShutdownFromConfig(cfg.Shutdown)
	if err != nil {
		return err
	}

	handler := &proxy.Handler{
		Gateway: a.gateway,
		Metrics: a.metrics,
		Limits:  lim,
		Logger:  a.logger.New("module", "proxy"),
	}
	mux := http.NewServeMux()
	if cfg.AdminListenAddr == "" {
		mux.Handle("/metrics", a.metrics.Handler())
	}
	mux.Handle("/", handler)

	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		tlsCfg, err = server.LoadTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, a.logger.New("module", "tls"))
		if err != nil {
			return err
		}
	}

	var cleanups []func()
	abort := func(err error) error {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return err
	}

	var g run.Group
	{
		srv, err := server.StartServers(mux, tlsCfg, cfg.ListenAddr, cfg.TLSListenAddr, server.Options{
			Limits:    lim,
			Shutdown:  shutdown,
			Inflight:  a.inflight,
			Stoppers:  []server.Stopper{a.gateway},
			CloseIdle: []func(){a.fetcher.CloseIdleConnections},
			Logger:    a.logger.New("module", "server"),
		})
		if err != nil {
			return abort(err)
		}
		cleanups = append(cleanups, func() { _ = srv.Shutdown() })
		a.logger.Info("gateway listening", "http", srv.HTTPAddr, "https", srv.TLSAddr, "origin", cfg.Origin, "version", cfg.Version)

		stop := make(chan struct{})
		g.Add(func() error {
			<-stop
			a.logger.Info("gateway shutting down", "budget", shutdown.Budget(), "pending_write_backs", a.gateway.PendingWriteBacks())
			return srv.Shutdown()
		}, func(error) {
			close(stop)
		})
	}
	if cfg.AdminListenAddr != "" {
		adminSrv, err := startAdmin(a, lim, shutdown)
		if err != nil {
			return abort(err)
		}
		cleanups = append(cleanups, func() { _ = adminSrv.Shutdown() })
		a.logger.Info("admin listening", "addr", cfg.AdminListenAddr, "tls", cfg.Admin.CertFile != "")

		stop := make(chan struct{})
		g.Add(func() error {
			<-stop
			return adminSrv.Shutdown()
		}, func(error) {
			close(stop)
		})
	}
	if cfg.GRPCHealthAddr != "" {
		ln, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return abort(err)
		}
		healthSrv := health.NewServer(a.logger.New("module", "health"))
		a.gateway.OnStateChange(healthSrv.SetState)
		a.logger.Info("grpc health listening", "addr", ln.Addr().String())

		healthCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return healthSrv.Serve(healthCtx, ln)
		}, func(error) {
			cancel()
		})
	}
	{
		installCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			result, err := a.gateway.Install(installCtx)
			if errors.Is(err, gateway.ErrStopped) {
				<-installCtx.Done()
				return nil
			}
			if err != nil {
				a.logger.Error("install failed", "err", err)
				return err
			}
			logInstall(a, result)
			<-installCtx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		a.logger.Info("shutting down", "signal", sigErr.Signal.String())
		return nil
	}
	return err
}

func startAdmin(a *app, lim limits.Limits, shutdown runtime.ShutdownConfig) (*server.Server, error) {
	cfg := a.cfg
	auth, err := admin.NewAuthenticator(admin.AuthConfig{
		Token:        cfg.Admin.Token(),
		ReadToken:    cfg.Admin.ReadToken(),
		ClientCAFile: cfg.Admin.ClientCAFile,
	})
	if err != nil {
		return nil, err
	}
	handler := admin.NewHandler(admin.HandlerConfig{
		Gateway:     a.gateway,
		Storage:     a.storage,
		Auth:        auth,
		RateLimiter: admin.NewRateLimiter(admin.RateLimitConfig{}),
		Metrics:     a.metrics,
		Logger:      a.logger.New("module", "admin"),
	})
	opts := server.Options{
		Limits:   lim,
		Shutdown: shutdown,
		Logger:   a.logger.New("module", "admin"),
	}
	if cfg.Admin.CertFile == "" {
		return server.StartServers(handler, nil, cfg.AdminListenAddr, "", opts)
	}
	tlsCfg, err := admin.TLSConfig(cfg.Admin.CertFile, cfg.Admin.KeyFile, cfg.Admin.ClientCAFile)
	if err != nil {
		return nil, err
	}
	return server.StartServers(handler, tlsCfg, "", cfg.AdminListenAddr, opts)
}

func logInstall(a *app, result gateway.InstallResult) {
	a.logger.Info("installed",
		"version", result.Version,
		"populated", len(result.Populated),
		"failed", len(result.Failed),
		"pruned", len(result.Pruned),
	)
	for _, failure := range result.Failed {
		a.logger.Warn("precache failed", "asset", failure.URL, "reason", failure.Reason)
	}
}
