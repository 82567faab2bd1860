package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/proxy"
)

type handler struct {
	gateway     *gateway.Gateway
	storage     cache.Storage
	auth        *Authenticator
	rateLimiter *RateLimiter
	logger      logging.Logger
	mux         *http.ServeMux
}

type StateResponse struct {
	State      string                 `json:"state"`
	Version    string                 `json:"version"`
	CodeStore  string                 `json:"code_store"`
	AssetStore string                 `json:"asset_store"`
	WriteBacks int                    `json:"pending_write_backs"`
	Install    *gateway.InstallResult `json:"install,omitempty"`
}

type PruneResponse struct {
	Pruned []string `json:"pruned"`
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)
	if requestID == "" {
		requestID = proxy.NewRequestID()
		if requestID == "" {
			requestID = time.Now().UTC().Format("20060102150405.000000000")
		}
		r.Header.Set(proxy.RequestIDHeader, requestID)
	}
	w.Header().Set(proxy.RequestIDHeader, requestID)

	if h.rateLimiter != nil {
		if !h.rateLimiter.Allow(r.RemoteAddr) {
			writeError(w, requestID, http.StatusTooManyRequests, "rate_limited")
			return
		}
	}

	if h.auth == nil {
		writeError(w, requestID, http.StatusUnauthorized, "auth unavailable")
		return
	}
	role, err := h.auth.Authenticate(r)
	if err != nil {
		if h.rateLimiter != nil {
			h.rateLimiter.RecordFailure(r.RemoteAddr)
		}
		status := http.StatusUnauthorized
		message := "unauthorized"
		var authErr *AuthError
		if errors.As(err, &authErr) {
			status = authErr.Status
			message = authErr.Message
		}
		h.logger.Warn("admin auth rejected", "remote", r.RemoteAddr, "path", r.URL.Path, "reason", message)
		writeError(w, requestID, status, message)
		return
	}
	if h.rateLimiter != nil {
		h.rateLimiter.ResetFailures(r.RemoteAddr)
	}
	if role < RoleOperator && mutating(r) {
		writeError(w, requestID, http.StatusForbidden, "operator token required")
		return
	}

	h.mux.ServeHTTP(w, r)
}

// mutating reports requests that change gateway state.
func mutating(r *http.Request) bool {
	return r.Method != http.MethodGet && r.Method != http.MethodHead
}

func (h *handler) handleState(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)
	if r.Method != http.MethodGet {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.gateway == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	writeJSON(w, requestID, http.StatusOK, h.state())
}

func (h *handler) state() StateResponse {
	code, assets := h.gateway.StoreNames()
	resp := StateResponse{
		State:      h.gateway.State().String(),
		Version:    h.gateway.Version(),
		CodeStore:  code.String(),
		AssetStore: assets.String(),
		WriteBacks: h.gateway.PendingWriteBacks(),
	}
	if result, ok := h.gateway.LastInstall(); ok {
		resp.Install = &result
	}
	return resp
}

func (h *handler) handleInstall(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)
	if h.gateway == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		result, ok := h.gateway.LastInstall()
		if !ok {
			writeError(w, requestID, http.StatusNotFound, "not installed")
			return
		}
		writeJSON(w, requestID, http.StatusOK, result)
	case http.MethodPost:
		result, err := h.gateway.Install(r.Context())
		if errors.Is(err, gateway.ErrAlreadyInstalled) {
			writeError(w, requestID, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			h.logger.Error("admin install failed", "err", err)
			writeError(w, requestID, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, requestID, http.StatusOK, result)
	default:
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *handler) handleStores(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)
	if r.Method != http.MethodGet {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.storage == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	var current []cache.StoreName
	if h.gateway != nil {
		code, assets := h.gateway.StoreNames()
		current = append(current, code, assets)
	}
	stores, err := gateway.ListStores(r.Context(), h.storage, current...)
	if err != nil {
		writeError(w, requestID, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, requestID, http.StatusOK, map[string]interface{}{"stores": stores})
}

func (h *handler) handlePrune(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)
	if r.Method != http.MethodPost {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.gateway == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	pruned, err := h.gateway.Prune(r.Context())
	if err != nil {
		h.logger.Error("admin prune failed", "err", err, "pruned", len(pruned))
		writeError(w, requestID, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, requestID, http.StatusOK, PruneResponse{Pruned: pruned})
}

func writeError(w http.ResponseWriter, requestID string, status int, message string) {
	writeJSON(w, requestID, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, requestID string, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(proxy.RequestIDHeader, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
