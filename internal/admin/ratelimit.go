package admin

import (
	"net"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultRateLimitRPS   = 5
	defaultRateLimitBurst = 10
	defaultMaxFailures    = 20
	defaultBlockDuration  = 10 * time.Minute
	defaultMaxClients     = 4096
)

type RateLimitConfig struct {
	RPS           int
	Burst         int
	MaxFailures   int
	BlockDuration time.Duration
	// MaxClients bounds how many client addresses are tracked at once; the
	// least recently seen client is forgotten first.
	MaxClients int
}

// RateLimiter throttles admin calls per client IP and blocks clients that keep
// failing authentication. Client records expire after BlockDuration, so
// failures only count when they fall inside that window.
type RateLimiter struct {
	mu          sync.Mutex
	clients     *expirable.LRU[string, *client]
	rate        float64
	burst       float64
	maxFailures int
	blockFor    time.Duration
}

type client struct {
	tokens      float64
	refilled    time.Time
	failures    int
	blockedTill time.Time
}

func (c *client) take(now time.Time, rate float64, burst float64) bool {
	c.tokens = min(burst, c.tokens+now.Sub(c.refilled).Seconds()*rate)
	c.refilled = now
	if c.tokens < 1 {
		return false
	}
	c.tokens--
	return true
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = withRateLimitDefaults(cfg)
	return &RateLimiter{
		clients:     expirable.NewLRU[string, *client](cfg.MaxClients, nil, cfg.BlockDuration),
		rate:        float64(cfg.RPS),
		burst:       float64(cfg.Burst),
		maxFailures: cfg.MaxFailures,
		blockFor:    cfg.BlockDuration,
	}
}

func withRateLimitDefaults(cfg RateLimitConfig) RateLimitConfig {
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRateLimitRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultRateLimitBurst
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaultBlockDuration
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	return cfg
}

// Allow spends one token for the caller at addr.
func (l *RateLimiter) Allow(addr string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.lookup(clientIP(addr), now)
	if now.Before(c.blockedTill) {
		return false
	}
	return c.take(now, l.rate, l.burst)
}

// RecordFailure counts a failed authentication and blocks the client once
// it reaches the limit.
func (l *RateLimiter) RecordFailure(addr string) {
	if l == nil {
		return
	}
	now := time.Now()
	ip := clientIP(addr)
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.lookup(ip, now)
	if now.Before(c.blockedTill) {
		return
	}
	c.failures++
	if c.failures < l.maxFailures {
		return
	}
	c.failures = 0
	c.blockedTill = now.Add(l.blockFor)
	// re-adding restarts the expiry so the block outlives the record
	l.clients.Add(ip, c)
}

func (l *RateLimiter) ResetFailures(addr string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients.Get(clientIP(addr)); ok {
		c.failures = 0
	}
}

func (l *RateLimiter) lookup(ip string, now time.Time) *client {
	if c, ok := l.clients.Get(ip); ok {
		return c
	}
	c := &client{tokens: l.burst, refilled: now}
	l.clients.Add(ip, c)
	return c
}

func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
