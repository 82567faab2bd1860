package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	ErrNoFetcher        = errors.New("gateway has no fetcher")
	ErrAlreadyInstalled = errors.New("gateway already installed")
	ErrStopped          = errors.New("gateway stopped")
	ErrResponseTooLarge = errors.New("response exceeds max object bytes")
	// ErrOriginUnavailable is returned without a network call while the
	// origin breaker is open.
	ErrOriginUnavailable = errors.New("origin marked unavailable")
)

// ClassifyError maps a network error to a short category for logs and metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return "too_large"
	}
	if errors.Is(err, ErrOriginUnavailable) {
		return "offline"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "reset"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "eof"
	}
	return "unknown"
}
