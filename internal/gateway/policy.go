package gateway

import (
	"net/http"
	"strings"

	"offline_gateway/internal/cache"
)

type Policy string

const (
	PolicyNetworkFirst Policy = "network_first"
	PolicyCacheFirst   Policy = "cache_first"
	PolicyNetworkOnly  Policy = "network_only"
)

const DefaultControlScriptPath = "/sw.js"

// Classify picks the policy for a request. Code and documents must stay fresh,
// so they only fall back to the cache when the network is unreachable.
// Requests carrying credentials never touch the shared stores.
func Classify(req Request, controlScriptPath string) Policy {
	if !strings.EqualFold(req.Method, http.MethodGet) || credentialed(req.Header) {
		return PolicyNetworkOnly
	}
	if controlScriptPath == "" {
		controlScriptPath = DefaultControlScriptPath
	}
	if req.URL != nil && req.URL.Path == controlScriptPath {
		return PolicyNetworkFirst
	}
	switch req.Destination {
	case DestinationDocument, DestinationScript, DestinationManifest:
		return PolicyNetworkFirst
	default:
		return PolicyCacheFirst
	}
}

func credentialed(header http.Header) bool {
	return header.Get("Authorization") != "" || header.Get("Cookie") != ""
}

// partialHeaders make the origin answer with less than the full resource.
var partialHeaders = []string{"Range", "If-Match", "If-None-Match", "If-Modified-Since", "If-Unmodified-Since", "If-Range"}

func partial(header http.Header) bool {
	for _, name := range partialHeaders {
		if header.Get(name) != "" {
			return true
		}
	}
	return false
}

// Storable reports whether a network response may be stored under the
// request's key and replayed to other clients. Only complete 200 responses
// that are neither private nor user-specific qualify.
func Storable(req Request, snapshot cache.Snapshot) bool {
	if snapshot.Status != http.StatusOK || credentialed(req.Header) || partial(req.Header) {
		return false
	}
	if len(snapshot.Header.Values("Set-Cookie")) > 0 {
		return false
	}
	for _, value := range snapshot.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "no-store", "private":
				return false
			}
		}
	}
	return true
}
