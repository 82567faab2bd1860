package gateway

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Destination mirrors the Fetch API's request destination.
type Destination string

const (
	DestinationUnknown  Destination = ""
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationManifest Destination = "manifest"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationEmpty    Destination = "empty"
)

const SecFetchDestHeader = "Sec-Fetch-Dest"

// Request is the descriptor the router works on. URL is origin-relative for
// intercepted requests.
type Request struct {
	Method      string
	URL         *url.URL
	Destination Destination
	Header      http.Header
	Body        io.Reader
	// RemoteAddr and TLS describe the client connection for forwarding headers.
	RemoteAddr string
	TLS        bool
}

func NewRequest(r *http.Request) Request {
	target := &url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}
	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	return Request{
		Method:      r.Method,
		URL:         target,
		Destination: DestinationOf(r),
		Header:      r.Header.Clone(),
		Body:        body,
		RemoteAddr:  r.RemoteAddr,
		TLS:         r.TLS != nil,
	}
}

// DestinationOf reads Sec-Fetch-Dest and falls back to guessing from the
// Accept header and the path extension.
func DestinationOf(r *http.Request) Destination {
	if value := strings.ToLower(strings.TrimSpace(r.Header.Get(SecFetchDestHeader))); value != "" {
		return Destination(value)
	}
	if dest := destinationFromPath(r.URL.Path); dest != DestinationUnknown {
		return dest
	}
	if acceptsHTML(r.Header.Get("Accept")) {
		return DestinationDocument
	}
	return DestinationUnknown
}

func destinationFromPath(p string) Destination {
	base := strings.ToLower(path.Base(p))
	if base == "manifest.json" || strings.HasSuffix(base, ".webmanifest") {
		return DestinationManifest
	}
	switch path.Ext(base) {
	case ".html", ".htm":
		return DestinationDocument
	case ".js", ".mjs":
		return DestinationScript
	case ".css":
		return DestinationStyle
	case ".woff", ".woff2", ".ttf", ".otf":
		return DestinationFont
	}
	if typ := mime.TypeByExtension(path.Ext(base)); strings.HasPrefix(typ, "image/") {
		return DestinationImage
	}
	return DestinationUnknown
}

func acceptsHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}
	return false
}
