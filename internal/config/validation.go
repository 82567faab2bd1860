package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	warnings := []string{}
	if err := validateOrigin(cfg); err != nil {
		return warnings, err
	}
	if err := validateVersion(cfg); err != nil {
		return warnings, err
	}
	if err := validateAssets(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateStorage(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateTimeouts(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateBreaker(cfg); err != nil {
		return warnings, err
	}
	if err := validateLimits(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateLog(cfg); err != nil {
		return warnings, err
	}
	if err := validateListeners(cfg); err != nil {
		return warnings, err
	}
	if err := validateAdmin(cfg); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func validateOrigin(cfg *Config) error {
	origin := strings.TrimSpace(cfg.Origin)
	if origin == "" {
		return errors.New("origin is required")
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("origin host is required")
	}
	return nil
}

func validateVersion(cfg *Config) error {
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		return errors.New("version is required")
	}
	// store names are split on the last hyphen
	if strings.ContainsAny(version, "- \t/") {
		return fmt.Errorf("version %q must not contain hyphens, spaces or slashes", version)
	}
	prefix := strings.TrimSpace(cfg.StorePrefix)
	if prefix == "" {
		return errors.New("store_prefix is required")
	}
	if strings.ContainsAny(prefix, " \t/") {
		return fmt.Errorf("store_prefix %q must not contain spaces or slashes", prefix)
	}
	return nil
}

func validateAssets(cfg *Config, warnings *[]string) error {
	if !strings.HasPrefix(cfg.ControlScriptPath, "/") {
		return fmt.Errorf("control_script_path %q must start with /", cfg.ControlScriptPath)
	}
	if cfg.PrecacheConcurrency < 0 {
		return errors.New("precache_concurrency must be >= 0")
	}
	if len(cfg.PrecacheAssets) == 0 {
		*warnings = append(*warnings, "precache_assets is empty; nothing is available offline until first visit")
	}
	seen := make(map[string]struct{}, len(cfg.PrecacheAssets))
	for _, asset := range cfg.PrecacheAssets {
		parsed, err := url.Parse(asset)
		if err != nil {
			return fmt.Errorf("precache asset %q: %w", asset, err)
		}
		if parsed.IsAbs() || parsed.Host != "" || !strings.HasPrefix(parsed.Path, "/") {
			return fmt.Errorf("precache asset %q must be an origin-relative path", asset)
		}
		if _, ok := seen[asset]; ok {
			*warnings = append(*warnings, fmt.Sprintf("precache asset %q listed twice", asset))
		}
		seen[asset] = struct{}{}
	}
	return nil
}

func validateStorage(cfg *Config, warnings *[]string) error {
	storage := cfg.Storage
	switch storage.Backend {
	case BackendMemory:
	case BackendLRU:
		if storage.LRUSize < 0 {
			return errors.New("storage.lru_size must be >= 0")
		}
	case BackendLevelDB, BackendSQLite:
		if strings.TrimSpace(storage.Path) == "" {
			return fmt.Errorf("storage.path is required for %s backend", storage.Backend)
		}
	case BackendRedis:
		if strings.TrimSpace(storage.Redis.Addr) == "" {
			return errors.New("storage.redis.addr is required for redis backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", storage.Backend)
	}
	if storage.MaxObjectBytes < 0 {
		return errors.New("storage.max_object_bytes must be >= 0")
	}
	if storage.Backend == BackendMemory || storage.Backend == BackendLRU {
		*warnings = append(*warnings, fmt.Sprintf("storage backend %q does not survive restarts", storage.Backend))
	}
	if cfg.KeepStaleStores {
		*warnings = append(*warnings, "keep_stale_stores is set; stores of older versions are never dropped")
	}
	return nil
}

func validateTimeouts(cfg *Config, warnings *[]string) error {
	timeouts := cfg.Timeouts
	if timeouts.NetworkMS < 0 {
		return errors.New("timeouts.network_timeout_ms must be >= 0")
	}
	if timeouts.InstallMS < 0 {
		return errors.New("timeouts.install_timeout_ms must be >= 0")
	}
	if timeouts.WriteBackMS < 0 {
		return errors.New("timeouts.write_back_timeout_ms must be >= 0")
	}
	if timeouts.InstallMS > 0 && timeouts.NetworkMS > timeouts.InstallMS {
		*warnings = append(*warnings, "timeouts.network_timeout_ms exceeds install_timeout_ms")
	}
	return nil
}

func validateBreaker(cfg *Config) error {
	b := cfg.OriginBreaker
	if b.FailureRatePercent < 0 || b.FailureRatePercent > 100 {
		return errors.New("origin_breaker.failure_rate_percent must be within 0..100")
	}
	if b.MinimumRequests < 0 || b.WindowMS < 0 || b.OpenMS < 0 || b.HalfOpenProbes < 0 {
		return errors.New("origin_breaker values must be >= 0")
	}
	return nil
}

func validateLimits(cfg *Config, warnings *[]string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	limitsConfigured := limitsConfigured(cfg.Limits)
	if cfg.Limits.MaxBodyBytes != nil {
		if *cfg.Limits.MaxBodyBytes <= 0 {
			return errors.New("limits.max_body_bytes must be > 0")
		}
	}
	if limitsConfigured && cfg.Limits.ReadHeaderTimeoutMS <= 0 {
		return errors.New("limits.read_header_timeout_ms must be > 0")
	}
	if cfg.Limits.WriteTimeoutMS > 0 && cfg.Limits.WriteTimeoutMS < cfg.Timeouts.NetworkMS {
		*warnings = append(*warnings, "limits.write_timeout_ms is shorter than timeouts.network_timeout_ms")
	}
	return nil
}

func validateLog(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "dbug", "info", "warn", "error", "eror", "crit":
	default:
		return fmt.Errorf("log.level %q is not supported", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "logfmt", "terminal":
	default:
		return fmt.Errorf("log.format %q is not supported", cfg.Log.Format)
	}
	return nil
}

func validateListeners(cfg *Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" && strings.TrimSpace(cfg.TLSListenAddr) == "" {
		return errors.New("listen_addr or tls_listen_addr is required")
	}
	if cfg.TLS.Enabled {
		if strings.TrimSpace(cfg.TLSListenAddr) == "" {
			return errors.New("tls enabled but tls_listen_addr missing")
		}
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			return errors.New("tls enabled but cert_file or key_file missing")
		}
	} else if strings.TrimSpace(cfg.TLSListenAddr) != "" {
		return errors.New("tls_listen_addr set but tls disabled")
	}
	return nil
}

func validateAdmin(cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.AdminListenAddr) == "" {
		return nil
	}
	env := strings.TrimSpace(cfg.Admin.TokenEnv)
	if env == "" {
		env = DefaultAdminTokenEnv
	}
	if strings.TrimSpace(os.Getenv(env)) == "" {
		return fmt.Errorf("admin token missing in %s", env)
	}
	if read := strings.TrimSpace(cfg.Admin.ReadTokenEnv); read != "" && strings.TrimSpace(os.Getenv(read)) == "" {
		return fmt.Errorf("admin read token missing in %s", read)
	}
	if (cfg.Admin.CertFile == "") != (cfg.Admin.KeyFile == "") {
		return errors.New("admin cert_file and key_file must be set together")
	}
	if cfg.Admin.ClientCAFile != "" && cfg.Admin.CertFile == "" {
		return errors.New("admin client_ca_file requires admin tls")
	}
	return nil
}

func limitsConfigured(cfg LimitsConfig) bool {
	if cfg.MaxHeaderBytes != 0 || cfg.MaxHeaderCount != 0 || cfg.MaxURLBytes != 0 {
		return true
	}
	if cfg.MaxBodyBytes != nil {
		return true
	}
	if cfg.ReadHeaderTimeoutMS != 0 || cfg.ReadTimeoutMS != 0 || cfg.WriteTimeoutMS != 0 {
		return true
	}
	if cfg.IdleTimeoutMS != 0 {
		return true
	}
	return false
}
