package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
)

const RequestIDHeader = obs.RequestIDHeader

// ProxyErrorBody is the JSON body of every response the gateway produces
// itself instead of relaying a snapshot.
type ProxyErrorBody struct {
	Status        int    `json:"status"`
	RequestID     string `json:"request_id"`
	ErrorCategory string `json:"error_category"`
	Message       string `json:"message"`
}

type failure struct {
	status  int
	message string
}

var failures = map[string]failure{
	"timeout":        {http.StatusGatewayTimeout, "origin timeout"},
	"dial":           {http.StatusBadGateway, "origin connect failed"},
	"too_large":      {http.StatusBadGateway, "origin response too large"},
	"offline":        {http.StatusBadGateway, "origin marked offline"},
	"body_too_large": {http.StatusRequestEntityTooLarge, "request body too large"},
}

// errorResponse maps an unanswerable request to status, category and message.
// No placeholder body is ever synthesized in place of the origin's response.
func errorResponse(err error) (int, string, string) {
	var maxBytesErr *http.MaxBytesError
	category := gateway.ClassifyError(err)
	if errors.As(err, &maxBytesErr) {
		category = "body_too_large"
	}
	if f, ok := failures[category]; ok {
		return f.status, category, f.message
	}
	return http.StatusBadGateway, category, "origin request failed"
}

// requestID keeps a caller-supplied id so traces line up across hops.
func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return NewRequestID()
}

func NewRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
