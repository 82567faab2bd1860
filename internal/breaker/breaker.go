package breaker

import (
	"sync"
	"time"
)

type State int32

const (
	StateClosed State = iota + 1
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureRatePercent = 50
	defaultMinimumRequests    = 5
	defaultWindow             = 10 * time.Second
	defaultOpenDuration       = 5 * time.Second
	defaultHalfOpenProbes     = 1
)

type Config struct {
	FailureRatePercent int
	MinimumRequests    int
	Window             time.Duration
	OpenDuration       time.Duration
	HalfOpenProbes     int
	// OnStateChange runs under the breaker lock; it must not call back in.
	OnStateChange func(from State, to State)
}

// Breaker marks the origin unreachable once transport failures dominate a
// window. While open, callers skip the network entirely; after OpenDuration a
// bounded number of probes decide whether to close again.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	windowStart time.Time
	requests    int
	failures    int
	openUntil   time.Time
	probes      int
	probeOK     int
}

func New(cfg Config) *Breaker {
	if cfg.FailureRatePercent <= 0 || cfg.FailureRatePercent > 100 {
		cfg.FailureRatePercent = defaultFailureRatePercent
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = defaultMinimumRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = defaultOpenDuration
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = defaultHalfOpenProbes
	}
	return &Breaker{cfg: cfg, now: time.Now, state: StateClosed}
}

func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a network call may proceed. A nil breaker always allows.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.transition(StateHalfOpen)
		b.probes, b.probeOK = 0, 0
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probes++
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed call. Only transport failures
// count; an HTTP error status means the origin is reachable.
func (b *Breaker) Report(success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.Window {
			b.windowStart = now
			b.requests, b.failures = 0, 0
		}
		b.requests++
		if !success {
			b.failures++
		}
		if b.requests >= b.cfg.MinimumRequests && b.failures*100/b.requests >= b.cfg.FailureRatePercent {
			b.open(now)
		}
	case StateHalfOpen:
		if !success {
			b.open(now)
			return
		}
		b.probeOK++
		if b.probeOK >= b.cfg.HalfOpenProbes {
			b.transition(StateClosed)
			b.windowStart = now
			b.requests, b.failures = 0, 0
		}
	}
}

// Abandon returns the slot of an allowed call whose outcome says nothing
// about the origin, such as one canceled by the client.
func (b *Breaker) Abandon() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

func (b *Breaker) open(now time.Time) {
	b.openUntil = now.Add(b.cfg.OpenDuration)
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
