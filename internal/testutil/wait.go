package testutil

import (
	"testing"
	"time"
)

// WaitTimeout bounds WaitFor. Background write-backs finish well within it.
const WaitTimeout = 2 * time.Second

// WaitFor polls check with a growing backoff until it returns nil, failing
// the test with the last error after WaitTimeout.
func WaitFor(t testing.TB, what string, check func() error) {
	t.Helper()
	deadline := time.Now().Add(WaitTimeout)
	backoff := 5 * time.Millisecond
	for {
		err := check()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", what, err)
		}
		time.Sleep(backoff)
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}
