package runtime

import (
	"fmt"
	"time"

	"offline_gateway/internal/config"
)

const (
	defaultDrain           = 500 * time.Millisecond
	defaultGracefulTimeout = 5 * time.Second
	defaultForceClose      = time.Second
)

// ShutdownConfig times the shutdown sequence. Drain is the pause after the
// gateway stops, GracefulTimeout bounds write-back flushing and connection
// draining, and ForceClose is the grace before connections are cut.
type ShutdownConfig struct {
	Drain           time.Duration
	GracefulTimeout time.Duration
	ForceClose      time.Duration
}

func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Drain:           defaultDrain,
		GracefulTimeout: defaultGracefulTimeout,
		ForceClose:      defaultForceClose,
	}
}

// ShutdownFromConfig converts millisecond settings. Zero keeps the default.
func ShutdownFromConfig(cfg config.ShutdownConfig) (ShutdownConfig, error) {
	shutdown := DefaultShutdownConfig()
	fields := []struct {
		name string
		ms   int
		dst  *time.Duration
	}{
		{"drain_ms", cfg.DrainMS, &shutdown.Drain},
		{"graceful_timeout_ms", cfg.GracefulTimeoutMS, &shutdown.GracefulTimeout},
		{"force_close_ms", cfg.ForceCloseMS, &shutdown.ForceClose},
	}
	for _, f := range fields {
		if f.ms < 0 {
			return ShutdownConfig{}, fmt.Errorf("shutdown.%s must be non-negative", f.name)
		}
		if f.ms > 0 {
			*f.dst = time.Duration(f.ms) * time.Millisecond
		}
	}
	return shutdown, nil
}

// WithDefaults fills unset durations.
func (c ShutdownConfig) WithDefaults() ShutdownConfig {
	defaults := DefaultShutdownConfig()
	if c.Drain <= 0 {
		c.Drain = defaults.Drain
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = defaults.GracefulTimeout
	}
	if c.ForceClose <= 0 {
		c.ForceClose = defaults.ForceClose
	}
	return c
}

// Budget is the longest the sequence can take: two graceful windows (gateway
// stop, then listener drain) plus the fixed pauses.
func (c ShutdownConfig) Budget() time.Duration {
	c = c.WithDefaults()
	return c.Drain + 2*c.GracefulTimeout + c.ForceClose
}
