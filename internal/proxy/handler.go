package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/gateway"
	"offline_gateway/internal/limits"
	"offline_gateway/internal/obs"
)

const (
	CacheHeader  = "X-Gateway-Cache"
	SourceHeader = "X-Gateway-Source"

	notReadyRetryAfterSeconds = "1"
)

// Handler serves intercepted requests through the gateway and writes the
// resulting snapshot, or a JSON error when nothing could answer.
type Handler struct {
	Gateway *gateway.Gateway
	Metrics *obs.Metrics
	Limits  limits.Limits
	Logger  logging.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := requestID(r)
	ctx := obs.StartTimeline(obs.WithRequestID(r.Context(), id))
	r = r.WithContext(ctx)
	rec := newRecorder(w)

	reqCtx := obs.RequestContext{
		RequestID:  id,
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	}
	defer func() {
		reqCtx.Duration = time.Since(start)
		rec.fill(&reqCtx)
		reqCtx.NetworkTime, _ = obs.StageTime(ctx, obs.StageNetwork)
		reqCtx.LookupTime, _ = obs.StageTime(ctx, obs.StageLookup)
		obs.LogAccess(reqCtx)
		h.metrics().ObserveRequest(reqCtx.Policy, reqCtx.Source, reqCtx.Status, reqCtx.Duration)
	}()

	if h == nil || h.Gateway == nil {
		rec.Header().Set("Retry-After", notReadyRetryAfterSeconds)
		rec.fail(id, http.StatusServiceUnavailable, "not_ready", "gateway not ready")
		return
	}
	reqCtx.GatewayState = h.Gateway.State().String()

	if violation := h.Limits.Check(r); violation != nil {
		rec.fail(id, violation.Status, violation.Category, http.StatusText(violation.Status))
		return
	}
	h.Limits.LimitBody(rec, r)

	req := gateway.NewRequest(r)
	reqCtx.Destination = string(req.Destination)
	out, err := h.Gateway.Handle(ctx, req)
	reqCtx.Policy = string(out.Policy)
	reqCtx.Source = string(out.Source)
	reqCtx.CacheStatus = string(out.CacheStatus)
	reqCtx.Coalesced = out.Coalesced
	if out.Policy != gateway.PolicyNetworkOnly {
		reqCtx.CacheVersion = h.Gateway.Version()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			rec.abandon("canceled")
			return
		}
		status, category, message := errorResponse(err)
		h.logger().Debug("request failed", "request_id", id, "path", r.URL.Path, "category", category, "err", err, "headers", redactedHeaders(r.Header))
		rec.fail(id, status, category, message)
		return
	}

	writeSnapshot(rec, r.Method, out, id)
}

func (h *Handler) metrics() *obs.Metrics {
	if h == nil {
		return nil
	}
	return h.Metrics
}

func (h *Handler) logger() logging.Logger {
	if h == nil || h.Logger == nil {
		return obs.NopLogger()
	}
	return h.Logger
}

func writeSnapshot(w http.ResponseWriter, method string, out gateway.Outcome, requestID string) {
	snapshot := out.Snapshot
	header := w.Header()
	copyHeaders(header, snapshot.Header)
	length := strconv.Itoa(len(snapshot.Body))
	if origin := snapshot.Header.Get("Content-Length"); method == http.MethodHead && origin != "" {
		// a HEAD answer has no body but describes the one GET would return
		length = origin
	}
	header.Set("Content-Length", length)
	header.Set(RequestIDHeader, requestID)
	header.Set(CacheHeader, string(out.CacheStatus))
	header.Set(SourceHeader, string(out.Source))
	status := snapshot.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(snapshot.Body) > 0 && bodyAllowed(status) {
		_, _ = w.Write(snapshot.Body)
	}
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent || status == http.StatusNotModified:
		return false
	}
	return true
}

func copyHeaders(dst http.Header, src http.Header) {
	for key, values := range src {
		if key == "Content-Length" {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func redactedHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name := range header {
		out[name] = obs.RedactHeaderValue(name, header.Get(name))
	}
	return out
}
