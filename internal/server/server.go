package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/limits"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/runtime"
	"offline_gateway/internal/tlsstore"
)

// Server owns the plain and TLS interception listeners and runs the ordered
// shutdown sequence: stop accepting, stop the gateway, drain, then close.
type Server struct {
	HTTPAddr string
	TLSAddr  string

	listeners    []*listener
	shutdown     runtime.ShutdownConfig
	inflight     *runtime.InflightTracker
	stoppers     []Stopper
	closeIdle    []func()
	logger       logging.Logger
	stopping     atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

type listener struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

// Stopper is told to stop before listeners drain. The gateway uses it to
// refuse new write-backs and flush pending ones.
type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits    limits.Limits
	Shutdown  runtime.ShutdownConfig
	Inflight  *runtime.InflightTracker
	Stoppers  []Stopper
	CloseIdle []func()
	Logger    logging.Logger
}

// LoadTLSConfig builds a server TLS config from a PEM certificate pair. The
// pair is re-read when it is rotated on disk.
func LoadTLSConfig(certFile string, keyFile string, logger logging.Logger) (*tls.Config, error) {
	store, err := tlsstore.Load(certFile, keyFile, tlsstore.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: store.GetCertificate,
	}, nil
}

// StartServers binds every configured address and starts serving handler.
// At least one of httpAddr and tlsAddr must be set.
func StartServers(handler http.Handler, tlsCfg *tls.Config, httpAddr string, tlsAddr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if httpAddr == "" && tlsAddr == "" {
		return nil, errors.New("no listeners configured")
	}
	if tlsAddr != "" && tlsCfg == nil {
		return nil, errors.New("tls config is required")
	}

	lim := options.Limits
	if lim.MaxHeaderBytes == 0 {
		lim = limits.Default()
	}
	logger := options.Logger
	if logger == nil {
		logger = obs.NopLogger()
	}

	s := &Server{
		shutdown:  options.Shutdown.WithDefaults(),
		inflight:  options.Inflight,
		stoppers:  options.Stoppers,
		closeIdle: options.CloseIdle,
		logger:    logger,
	}

	bind := func(name, addr string, wrap func(net.Listener) net.Listener) (string, error) {
		if addr == "" {
			return "", nil
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return "", err
		}
		bound := ln.Addr().String()
		if wrap != nil {
			ln = wrap(ln)
		}
		s.listeners = append(s.listeners, &listener{name: name, srv: newHTTPServer(handler, lim), ln: ln})
		return bound, nil
	}

	var err error
	if s.HTTPAddr, err = bind("http", httpAddr, nil); err != nil {
		return nil, err
	}
	s.TLSAddr, err = bind("https", tlsAddr, func(ln net.Listener) net.Listener {
		return tls.NewListener(ln, tlsCfg)
	})
	if err != nil {
		s.closeListeners()
		return nil, err
	}

	for _, l := range s.listeners {
		go s.serve(l)
	}
	return s, nil
}

func newHTTPServer(handler http.Handler, lim limits.Limits) *http.Server {
	return &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    lim.MaxHeaderBytes,
		ReadHeaderTimeout: lim.ReadHeaderTimeout,
		ReadTimeout:       lim.ReadTimeout,
		WriteTimeout:      lim.WriteTimeout,
		IdleTimeout:       lim.IdleTimeout,
	}
}

func (s *Server) serve(l *listener) {
	err := l.srv.Serve(l.ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) || s.stopping.Load() {
		return
	}
	s.logger.Error("listener failed", "listener", l.name, "addr", l.ln.Addr().String(), "err", err)
}

func (s *Server) Close() error {
	return s.Shutdown()
}

// Shutdown runs the shutdown sequence once; later calls return the first result.
func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	s.stopping.Store(true)
	s.closeListeners()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(stopCtx); err != nil {
			s.logger.Warn("stopper did not finish", "err", err)
		}
	}
	stopCancel()

	if s.shutdown.Drain > 0 {
		time.Sleep(s.shutdown.Drain)
	}
	for _, closeIdle := range s.closeIdle {
		if closeIdle != nil {
			closeIdle()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer cancel()
	if err := s.inflight.Wait(ctx); err != nil {
		s.logger.Warn("background work still pending", "pending", s.inflight.Pending())
	}

	var firstErr error
	for _, l := range s.listeners {
		if err := l.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && firstErr == nil {
			firstErr = err
		}
	}
	if ctx.Err() == nil {
		return firstErr
	}

	if s.shutdown.ForceClose > 0 {
		time.Sleep(s.shutdown.ForceClose)
	}
	for _, l := range s.listeners {
		_ = l.srv.Close()
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (s *Server) closeListeners() {
	for _, l := range s.listeners {
		_ = l.ln.Close()
	}
}
