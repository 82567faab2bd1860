package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// Identity returns the cache key for a request. Only GET is cacheable.
func Identity(method string, u *url.URL) (string, bool) {
	if u == nil || !strings.EqualFold(method, http.MethodGet) {
		return "", false
	}

	host := strings.ToLower(u.Host)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	target := path
	if query := normalizeQuery(u); query != "" {
		target += "?" + query
	}

	var builder strings.Builder
	builder.Grow(len(host) + len(target) + 16)
	builder.WriteString("m=GET")
	if host != "" {
		builder.WriteString("|h=")
		if u.Scheme != "" {
			builder.WriteString(strings.ToLower(u.Scheme))
			builder.WriteString("://")
		}
		builder.WriteString(host)
	}
	builder.WriteString("|u=")
	builder.WriteString(target)
	return builder.String(), true
}

func RequestIdentity(req *http.Request) (string, bool) {
	if req == nil || req.URL == nil {
		return "", false
	}
	return Identity(req.Method, req.URL)
}

func normalizeQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return u.RawQuery
	}
	// Encode orders parameters by name and keeps repeated values in order
	return params.Encode()
}
