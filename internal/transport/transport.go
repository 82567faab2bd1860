package transport

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout         = 2 * time.Second
	defaultTLSHandshakeTimeout = 5 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultKeepAlive           = 30 * time.Second
	defaultMaxIdleConns        = 128
)

// Options tune the connection pool towards the single origin. Zero fields
// take the values OptionsFor derives from the default network timeout.
type Options struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	// MaxConnsPerHost of zero leaves the origin unbounded.
	MaxConnsPerHost int
}

// OptionsFor derives pool timeouts from the per-call network timeout so a
// stalled dial or handshake never outlives the call itself.
func OptionsFor(networkTimeout time.Duration) Options {
	if networkTimeout <= 0 {
		networkTimeout = DefaultNetworkTimeout
	}
	return Options{
		DialTimeout:           min(defaultDialTimeout, networkTimeout),
		TLSHandshakeTimeout:   min(defaultTLSHandshakeTimeout, networkTimeout),
		ResponseHeaderTimeout: networkTimeout,
		IdleConnTimeout:       defaultIdleConnTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
	}
}

func (o Options) withDefaults() Options {
	base := OptionsFor(DefaultNetworkTimeout)
	for _, d := range []struct{ dst, def *time.Duration }{
		{&o.DialTimeout, &base.DialTimeout},
		{&o.TLSHandshakeTimeout, &base.TLSHandshakeTimeout},
		{&o.ResponseHeaderTimeout, &base.ResponseHeaderTimeout},
		{&o.IdleConnTimeout, &base.IdleConnTimeout},
	} {
		if *d.dst <= 0 {
			*d.dst = *d.def
		}
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = base.MaxIdleConns
	}
	o.MaxConnsPerHost = max(o.MaxConnsPerHost, 0)
	return o
}

// NewTransport builds the origin round tripper. Every request targets the
// same host, so the per-host idle pool is the whole pool.
func NewTransport(opts Options) *http.Transport {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: defaultKeepAlive}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		IdleConnTimeout:       opts.IdleConnTimeout,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConns,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
	}
}
