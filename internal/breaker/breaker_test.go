package breaker

import (
	"testing"
	"time"
)

type clock struct {
	now time.Time
}

func (c *clock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{now: time.Unix(1700000000, 0)}
	b := New(cfg)
	b.now = func() time.Time { return c.now }
	return b, c
}

func TestOpensAfterFailureRate(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureRatePercent: 50, MinimumRequests: 4})

	b.Report(true)
	b.Report(false)
	b.Report(true)
	if b.State() != StateClosed {
		t.Fatalf("expected closed below minimum requests, got %s", b.State())
	}
	b.Report(false)
	if b.State() != StateOpen {
		t.Fatalf("expected open at 50%% failures, got %s", b.State())
	}
	if b.Allow() {
		t.Fatalf("expected open breaker to refuse calls")
	}
}

func TestHalfOpenProbeCloses(t *testing.T) {
	b, c := newTestBreaker(Config{MinimumRequests: 1, OpenDuration: time.Second, HalfOpenProbes: 1})
	b.Report(false)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	c.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatalf("expected a probe after open duration")
	}
	if b.Allow() {
		t.Fatalf("expected only one probe in flight")
	}
	b.Report(true)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatalf("expected closed breaker to allow")
	}
}

func TestFailedProbeReopens(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Config{
		MinimumRequests: 1,
		OpenDuration:    time.Second,
		OnStateChange: func(from State, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	b.Report(false)
	c.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatalf("expected probe")
	}
	b.Report(false)
	if b.State() != StateOpen || b.Allow() {
		t.Fatalf("expected reopened breaker")
	}

	want := []string{"closed>open", "open>half_open", "half_open>open"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, transitions)
		}
	}
}

func TestAbandonedProbeFreesSlot(t *testing.T) {
	b, c := newTestBreaker(Config{MinimumRequests: 1, OpenDuration: time.Second})
	b.Report(false)
	c.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatalf("expected probe")
	}
	b.Abandon()
	if !b.Allow() {
		t.Fatalf("expected abandoned probe slot to be reusable")
	}
}

func TestWindowResetsCounts(t *testing.T) {
	b, c := newTestBreaker(Config{FailureRatePercent: 50, MinimumRequests: 2, Window: time.Second})
	b.Report(false)
	c.advance(2 * time.Second)
	b.Report(true)
	if b.State() != StateClosed {
		t.Fatalf("expected stale failure to be forgotten, got %s", b.State())
	}
}

func TestNilBreakerAllows(t *testing.T) {
	var b *Breaker
	if !b.Allow() {
		t.Fatalf("expected nil breaker to allow")
	}
	b.Report(false)
	if b.State() != StateClosed {
		t.Fatalf("expected closed")
	}
}
