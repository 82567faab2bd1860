package obs

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var gatewayStates = []string{"uninstalled", "installing", "active", "stopped"}

type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	networkErrors    *prometheus.CounterVec
	writeBacks       *prometheus.CounterVec
	installAssets    *prometheus.CounterVec
	storesPruned     prometheus.Counter
	requestDuration  *prometheus.HistogramVec
	networkRoundTrip prometheus.Histogram
	gatewayState     *prometheus.GaugeVec
	versionInfo      *prometheus.GaugeVec
	breakerChanges   *prometheus.CounterVec
	mu               sync.Mutex
	lastVersion      string
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total intercepted requests",
	}, []string{"policy", "source", "status_class"})

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_requests_total",
		Help: "Total cache lookups by store kind and result",
	}, []string{"store", "status"})

	networkErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_network_errors_total",
		Help: "Total failed network fetches",
	}, []string{"category"})

	writeBacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_writeback_total",
		Help: "Total background cache writes",
	}, []string{"store", "result"})

	installAssets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_install_assets_total",
		Help: "Total precache attempts during install",
	}, []string{"result"})

	storesPruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stores_pruned_total",
		Help: "Total cache stores dropped on activation",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Intercepted request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"policy"})

	networkRoundTrip := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_network_roundtrip_seconds",
		Help:    "Origin roundtrip duration",
		Buckets: prometheus.DefBuckets,
	})

	gatewayState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_state",
		Help: "Gateway lifecycle state",
	}, []string{"state"})

	versionInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_version_info",
		Help: "Active cache version epoch",
	}, []string{"version"})

	breakerChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_origin_breaker_transitions_total",
		Help: "Origin circuit breaker state changes",
	}, []string{"state"})

	registry.MustRegister(requests, cacheRequests, networkErrors, writeBacks, installAssets, storesPruned, requestDuration, networkRoundTrip, gatewayState, versionInfo, breakerChanges)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		cacheRequests:    cacheRequests,
		networkErrors:    networkErrors,
		writeBacks:       writeBacks,
		installAssets:    installAssets,
		storesPruned:     storesPruned,
		requestDuration:  requestDuration,
		networkRoundTrip: networkRoundTrip,
		gatewayState:     gatewayState,
		versionInfo:      versionInfo,
		breakerChanges:   breakerChanges,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(policy string, source string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(defaultString(policy, "unknown"), defaultString(source, "none"), statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(defaultString(policy, "unknown")).Observe(duration.Seconds())
}

func (m *Metrics) ObserveNetworkRoundTrip(duration time.Duration) {
	if m == nil {
		return
	}
	m.networkRoundTrip.Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheRequest(store string, status string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(defaultString(store, "unknown"), defaultString(status, "unknown")).Inc()
}

func (m *Metrics) RecordNetworkError(category string) {
	if m == nil {
		return
	}
	m.networkErrors.WithLabelValues(defaultString(category, "unknown")).Inc()
}

func (m *Metrics) RecordWriteBack(store string, result string) {
	if m == nil {
		return
	}
	m.writeBacks.WithLabelValues(defaultString(store, "unknown"), defaultString(result, "unknown")).Inc()
}

func (m *Metrics) RecordInstallAsset(result string) {
	if m == nil {
		return
	}
	m.installAssets.WithLabelValues(defaultString(result, "unknown")).Inc()
}

func (m *Metrics) RecordStoresPruned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.storesPruned.Add(float64(count))
}

// SetGatewayState flips the state gauge so exactly one state reads 1.
func (m *Metrics) SetGatewayState(state string) {
	if m == nil {
		return
	}
	for _, known := range gatewayStates {
		value := 0.0
		if known == state {
			value = 1.0
		}
		m.gatewayState.WithLabelValues(known).Set(value)
	}
}

func (m *Metrics) SetVersionInfo(version string) {
	if m == nil || version == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastVersion != "" {
		m.versionInfo.WithLabelValues(m.lastVersion).Set(0)
	}
	m.versionInfo.WithLabelValues(version).Set(1)
	m.lastVersion = version
}

func (m *Metrics) RecordBreakerTransition(state string) {
	if m == nil {
		return
	}
	m.breakerChanges.WithLabelValues(defaultString(state, "unknown")).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
