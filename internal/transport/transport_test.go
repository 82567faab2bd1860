package transport

import (
	"testing"
	"time"
)

func TestOptionsForCapsPoolTimeouts(t *testing.T) {
	opts := OptionsFor(500 * time.Millisecond)
	if opts.DialTimeout != 500*time.Millisecond {
		t.Fatalf("expected dial timeout capped to network timeout, got %s", opts.DialTimeout)
	}
	if opts.TLSHandshakeTimeout != 500*time.Millisecond {
		t.Fatalf("expected handshake timeout capped, got %s", opts.TLSHandshakeTimeout)
	}
	if opts.ResponseHeaderTimeout != 500*time.Millisecond {
		t.Fatalf("expected header timeout 500ms, got %s", opts.ResponseHeaderTimeout)
	}

	long := OptionsFor(time.Minute)
	if long.DialTimeout != defaultDialTimeout {
		t.Fatalf("expected default dial timeout, got %s", long.DialTimeout)
	}
}

func TestNewTransportNormalizesOptions(t *testing.T) {
	tr := NewTransport(Options{MaxConnsPerHost: -1})
	if tr.MaxIdleConns != defaultMaxIdleConns || tr.MaxIdleConnsPerHost != defaultMaxIdleConns {
		t.Fatalf("expected idle pool %d, got %d/%d", defaultMaxIdleConns, tr.MaxIdleConns, tr.MaxIdleConnsPerHost)
	}
	if tr.MaxConnsPerHost != 0 {
		t.Fatalf("expected unlimited conns per host, got %d", tr.MaxConnsPerHost)
	}
	if tr.ResponseHeaderTimeout != DefaultNetworkTimeout {
		t.Fatalf("expected header timeout %s, got %s", DefaultNetworkTimeout, tr.ResponseHeaderTimeout)
	}
}
