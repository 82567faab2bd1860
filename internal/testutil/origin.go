package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Origin is a static file server standing in for the storefront host. It
// counts hits per path and can be switched to failing with 503s.
type Origin struct {
	URL string

	mu     sync.Mutex
	files  map[string]string
	hits   map[string]int
	broken bool
	server *httptest.Server
}

func StartOrigin(t *testing.T, files map[string]string) *Origin {
	t.Helper()
	o := &Origin{files: make(map[string]string), hits: make(map[string]int)}
	for path, body := range files {
		o.files[path] = body
	}
	o.server = httptest.NewServer(http.HandlerFunc(o.serve))
	o.URL = o.server.URL
	t.Cleanup(o.server.Close)
	return o
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	body, ok := o.files[r.URL.Path]
	broken := o.broken
	o.mu.Unlock()

	if broken {
		http.Error(w, "origin unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

// Set replaces the body served for path.
func (o *Origin) Set(path string, body string) {
	o.mu.Lock()
	o.files[path] = body
	o.mu.Unlock()
}

func (o *Origin) SetBroken(broken bool) {
	o.mu.Lock()
	o.broken = broken
	o.mu.Unlock()
}

func (o *Origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// Close stops the origin so later fetches fail to dial.
func (o *Origin) Close() {
	o.server.Close()
}
