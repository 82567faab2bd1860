package obs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type AccessLogEntry struct {
	Timestamp     string `json:"ts"`
	RequestID     string `json:"request_id"`
	Method        string `json:"method"`
	Host          string `json:"host"`
	Path          string `json:"path"`
	Destination   string `json:"destination"`
	Policy        string `json:"policy"`
	Source        string `json:"source"`
	CacheStatus   string `json:"cache_status"`
	CacheVersion  string `json:"cache_version"`
	GatewayState  string `json:"gateway_state"`
	Coalesced     bool   `json:"coalesced"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
	NetworkMS     int64  `json:"network_ms"`
	LookupMS      int64  `json:"lookup_ms"`
	BytesOut      int64  `json:"bytes_out"`
	ErrorCategory string `json:"error_category"`
	UserAgent     string `json:"user_agent,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
}

var (
	accessLogMu  sync.Mutex
	accessLogOut io.Writer
)

// SetAccessLogOutput redirects access logs; nil restores stdout.
func SetAccessLogOutput(w io.Writer) {
	accessLogMu.Lock()
	accessLogOut = w
	accessLogMu.Unlock()
}

func LogAccess(ctx RequestContext) {
	entry := AccessLogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:     defaultString(ctx.RequestID, "none"),
		Method:        ctx.Method,
		Host:          ctx.Host,
		Path:          ctx.Path,
		Destination:   defaultString(ctx.Destination, "unknown"),
		Policy:        defaultString(ctx.Policy, "none"),
		Source:        defaultString(ctx.Source, "none"),
		CacheStatus:   defaultString(ctx.CacheStatus, "bypass"),
		CacheVersion:  defaultString(ctx.CacheVersion, "none"),
		GatewayState:  defaultString(ctx.GatewayState, "unknown"),
		Coalesced:     ctx.Coalesced,
		Status:        ctx.Status,
		DurationMS:    ctx.Duration.Milliseconds(),
		NetworkMS:     ctx.NetworkTime.Milliseconds(),
		LookupMS:      ctx.LookupTime.Milliseconds(),
		BytesOut:      ctx.BytesOut,
		ErrorCategory: defaultString(ctx.ErrorCategory, "none"),
		UserAgent:     ctx.UserAgent,
		RemoteAddr:    ctx.RemoteAddr,
	}

	accessLogMu.Lock()
	defer accessLogMu.Unlock()
	out := accessLogOut
	if out == nil {
		out = os.Stdout
	}
	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(out, "log_marshal_error request_id=%s error=%v\n", entry.RequestID, err)
		return
	}
	_, _ = out.Write(append(data, '\n'))
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
