package obs

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// RequestIDHeader correlates the access log with origin logs.
const RequestIDHeader = "X-Request-Id"

// Stage names recorded on a request's timeline.
const (
	StageNetwork = "network"
	StageLookup  = "cache_lookup"
)

type requestIDKey struct{}

type timelineKey struct{}

// timeline sums the time one request spent in each stage. A stage can run
// more than once, for example a lookup before and after a network failure.
type timeline struct {
	mu     sync.Mutex
	stages map[string]time.Duration
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// StartTimeline attaches an empty timeline to ctx.
func StartTimeline(ctx context.Context) context.Context {
	return context.WithValue(ctx, timelineKey{}, &timeline{stages: make(map[string]time.Duration)})
}

// Track starts timing stage and returns the func that stops it. Without a
// timeline on ctx it does nothing.
func Track(ctx context.Context, stage string) func() {
	tl, ok := ctx.Value(timelineKey{}).(*timeline)
	if !ok {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		tl.mu.Lock()
		tl.stages[stage] += elapsed
		tl.mu.Unlock()
	}
}

// StageTime reports the total time recorded for stage.
func StageTime(ctx context.Context, stage string) (time.Duration, bool) {
	tl, ok := ctx.Value(timelineKey{}).(*timeline)
	if !ok {
		return 0, false
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	d, ok := tl.stages[stage]
	return d, ok
}

// InjectRequestID forwards the request id to the origin unless the client
// already sent one.
func InjectRequestID(req *http.Request, ctx context.Context) {
	if req.Header.Get(RequestIDHeader) != "" {
		return
	}
	if id := RequestID(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
}
