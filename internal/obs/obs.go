package obs

import "time"

type RequestContext struct {
	RequestID     string
	Method        string
	Host          string
	Path          string
	Destination   string
	Policy        string
	Source        string
	CacheStatus   string
	CacheVersion  string
	GatewayState  string
	Coalesced     bool
	Status        int
	Duration      time.Duration
	NetworkTime   time.Duration
	LookupTime    time.Duration
	BytesOut      int64
	ErrorCategory string
	UserAgent     string
	RemoteAddr    string
}
