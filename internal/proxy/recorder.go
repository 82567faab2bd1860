package proxy

import (
	"encoding/json"
	"net/http"

	"offline_gateway/internal/obs"
)

// statusClientClosed is logged when the client left before any response.
const statusClientClosed = 499

// recorder wraps the client writer and keeps what the access log needs.
type recorder struct {
	http.ResponseWriter
	status   int
	bytes    int64
	category string
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w}
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// fail answers with a gateway-generated JSON error. Error bodies are never
// stored by the client or by the gateway.
func (r *recorder) fail(requestID string, status int, category string, message string) {
	r.category = category
	header := r.Header()
	header.Set(RequestIDHeader, requestID)
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	r.WriteHeader(status)
	_ = json.NewEncoder(r).Encode(ProxyErrorBody{
		Status:        status,
		RequestID:     requestID,
		ErrorCategory: category,
		Message:       message,
	})
}

func (r *recorder) abandon(category string) {
	r.category = category
}

// fill copies the recorded response facts into the access log entry.
func (r *recorder) fill(reqCtx *obs.RequestContext) {
	reqCtx.Status = r.status
	if reqCtx.Status == 0 {
		reqCtx.Status = statusClientClosed
	}
	reqCtx.BytesOut = r.bytes
	if r.category != "" {
		reqCtx.ErrorCategory = r.category
	}
}
