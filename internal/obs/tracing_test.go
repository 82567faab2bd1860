package obs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTrackAccumulatesStages(t *testing.T) {
	ctx := StartTimeline(context.Background())
	for i := 0; i < 2; i++ {
		stop := Track(ctx, StageLookup)
		time.Sleep(5 * time.Millisecond)
		stop()
	}
	got, ok := StageTime(ctx, StageLookup)
	if !ok || got < 10*time.Millisecond {
		t.Fatalf("expected two lookups to be summed, got %v %v", got, ok)
	}
	if _, ok := StageTime(ctx, StageNetwork); ok {
		t.Fatalf("untracked stage must be absent")
	}
}

func TestTrackWithoutTimeline(t *testing.T) {
	Track(context.Background(), StageNetwork)()
	if _, ok := StageTime(context.Background(), StageNetwork); ok {
		t.Fatalf("expected no timeline")
	}
}

func TestInjectRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	InjectRequestID(req, ctx)
	if req.Header.Get(RequestIDHeader) != "abc" {
		t.Fatalf("expected request id to be forwarded")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client")
	InjectRequestID(req, ctx)
	if req.Header.Get(RequestIDHeader) != "client" {
		t.Fatalf("client request id must win")
	}
}
