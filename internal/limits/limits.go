package limits

import (
	"fmt"
	"net/http"
	"time"

	"offline_gateway/internal/config"
)

const (
	defaultMaxHeaderBytes    = 64 * 1024
	defaultMaxHeaderCount    = 200
	defaultMaxURLBytes       = 8 * 1024
	defaultMaxBodyBytes      = 10 * 1024 * 1024
	defaultReadHeaderTimeout = 2 * time.Second
	defaultIdleTimeout       = 30 * time.Second
)

// Limits bounds what a client may send to the interception listener. The
// size limits are checked per request; the timeouts go to http.Server.
type Limits struct {
	MaxHeaderBytes    int
	MaxHeaderCount    int
	MaxURLBytes       int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Violation names the limit a request broke and the status to answer with.
type Violation struct {
	Status   int
	Category string
}

func Default() Limits {
	return Limits{
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		MaxHeaderCount:    defaultMaxHeaderCount,
		MaxURLBytes:       defaultMaxURLBytes,
		MaxBodyBytes:      defaultMaxBodyBytes,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// FromConfig overlays configured values on the defaults. A nil body limit
// keeps the default; an explicit zero disables it.
func FromConfig(cfg config.LimitsConfig) (Limits, error) {
	lim := Default()
	overrideInt(&lim.MaxHeaderBytes, cfg.MaxHeaderBytes)
	overrideInt(&lim.MaxHeaderCount, cfg.MaxHeaderCount)
	overrideInt(&lim.MaxURLBytes, cfg.MaxURLBytes)
	if cfg.MaxBodyBytes != nil {
		lim.MaxBodyBytes = *cfg.MaxBodyBytes
	}

	if cfg.ReadHeaderTimeoutMS < 0 {
		return Limits{}, fmt.Errorf("read_header_timeout_ms must be positive")
	}
	overrideDuration(&lim.ReadHeaderTimeout, cfg.ReadHeaderTimeoutMS)
	overrideDuration(&lim.ReadTimeout, cfg.ReadTimeoutMS)
	overrideDuration(&lim.WriteTimeout, cfg.WriteTimeoutMS)
	overrideDuration(&lim.IdleTimeout, cfg.IdleTimeoutMS)

	switch {
	case lim.MaxHeaderBytes <= 0:
		return Limits{}, fmt.Errorf("max_header_bytes must be positive")
	case lim.MaxHeaderCount <= 0:
		return Limits{}, fmt.Errorf("max_header_count must be positive")
	case lim.MaxURLBytes <= 0:
		return Limits{}, fmt.Errorf("max_url_bytes must be positive")
	case lim.MaxBodyBytes < 0:
		return Limits{}, fmt.Errorf("max_body_bytes must be non-negative")
	}
	return lim, nil
}

// Check reports the first limit r breaks, or nil. Zero limits are not enforced.
func (l Limits) Check(r *http.Request) *Violation {
	if l.MaxURLBytes > 0 && len(r.RequestURI) > l.MaxURLBytes {
		return &Violation{Status: http.StatusRequestURITooLong, Category: "url_too_long"}
	}
	if l.MaxHeaderCount > 0 && headerCount(r.Header) > l.MaxHeaderCount {
		return &Violation{Status: http.StatusRequestHeaderFieldsTooLarge, Category: "too_many_headers"}
	}
	if l.MaxBodyBytes > 0 && r.ContentLength > l.MaxBodyBytes {
		return &Violation{Status: http.StatusRequestEntityTooLarge, Category: "body_too_large"}
	}
	return nil
}

// LimitBody caps a request body whose length was not declared up front.
func (l Limits) LimitBody(w http.ResponseWriter, r *http.Request) {
	if l.MaxBodyBytes <= 0 || r.Body == nil || r.Body == http.NoBody {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, l.MaxBodyBytes)
}

func headerCount(header http.Header) int {
	count := 0
	for _, values := range header {
		count += len(values)
	}
	return count
}

func overrideInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}

func overrideDuration(dst *time.Duration, milliseconds int) {
	if milliseconds > 0 {
		*dst = time.Duration(milliseconds) * time.Millisecond
	}
}
