package runtime

import (
	"testing"
	"time"

	"offline_gateway/internal/config"
)

func TestShutdownFromConfig(t *testing.T) {
	shutdown, err := ShutdownFromConfig(config.ShutdownConfig{DrainMS: 100, GracefulTimeoutMS: 2000})
	if err != nil {
		t.Fatalf("shutdown config: %v", err)
	}
	if shutdown.Drain != 100*time.Millisecond || shutdown.GracefulTimeout != 2*time.Second {
		t.Fatalf("unexpected shutdown %+v", shutdown)
	}
	if shutdown.ForceClose != defaultForceClose {
		t.Fatalf("expected default force close, got %v", shutdown.ForceClose)
	}
	if _, err := ShutdownFromConfig(config.ShutdownConfig{DrainMS: -1}); err == nil {
		t.Fatalf("expected error for negative drain")
	}
}

func TestShutdownBudget(t *testing.T) {
	shutdown := ShutdownConfig{Drain: 100 * time.Millisecond, GracefulTimeout: time.Second}
	want := 100*time.Millisecond + 2*time.Second + defaultForceClose
	if got := shutdown.Budget(); got != want {
		t.Fatalf("expected budget %v, got %v", want, got)
	}
}
