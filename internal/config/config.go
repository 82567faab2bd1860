package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultListenAddr          = "127.0.0.1:8080"
	DefaultStorePrefix         = "gateway"
	DefaultControlScriptPath   = "/sw.js"
	DefaultPrecacheConcurrency = 4
	DefaultBackend             = BackendMemory
	DefaultLRUSize             = 1024
	DefaultNetworkTimeoutMS    = 10000
	DefaultInstallTimeoutMS    = 30000
	DefaultWriteBackTimeoutMS  = 5000
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "logfmt"
	DefaultAdminTokenEnv       = "ADMIN_TOKEN"
)

const (
	BackendMemory  = "memory"
	BackendLRU     = "lru"
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
	BackendRedis   = "redis"
)

type Config struct {
	ListenAddr          string         `json:"listen_addr" env:"GATEWAY_LISTEN_ADDR"`
	TLSListenAddr       string         `json:"tls_listen_addr" env:"GATEWAY_TLS_LISTEN_ADDR"`
	AdminListenAddr     string         `json:"admin_listen_addr" env:"GATEWAY_ADMIN_LISTEN_ADDR"`
	GRPCHealthAddr      string         `json:"grpc_health_addr" env:"GATEWAY_GRPC_HEALTH_ADDR"`
	Origin              string         `json:"origin" env:"GATEWAY_ORIGIN"`
	Version             string         `json:"version" env:"GATEWAY_VERSION"`
	StorePrefix         string         `json:"store_prefix" env:"GATEWAY_STORE_PREFIX"`
	ControlScriptPath   string         `json:"control_script_path" env:"GATEWAY_CONTROL_SCRIPT_PATH"`
	PrecacheAssets      []string       `json:"precache_assets" env:"GATEWAY_PRECACHE_ASSETS" envSeparator:","`
	PrecacheConcurrency int            `json:"precache_concurrency" env:"GATEWAY_PRECACHE_CONCURRENCY"`
	DisableWriteBack    bool           `json:"disable_write_back" env:"GATEWAY_DISABLE_WRITE_BACK"`
	KeepStaleStores     bool           `json:"keep_stale_stores" env:"GATEWAY_KEEP_STALE_STORES"`
	Storage             StorageConfig  `json:"storage"`
	Timeouts            TimeoutsConfig `json:"timeouts"`
	OriginBreaker       BreakerConfig  `json:"origin_breaker"`
	Limits              LimitsConfig   `json:"limits"`
	Shutdown            ShutdownConfig `json:"shutdown"`
	Log                 LogConfig      `json:"log"`
	TLS                 TLSConfig      `json:"tls"`
	Admin               AdminConfig    `json:"admin"`
}

type StorageConfig struct {
	Backend        string      `json:"backend" env:"GATEWAY_STORAGE_BACKEND"`
	Path           string      `json:"path" env:"GATEWAY_STORAGE_PATH"`
	LRUSize        int         `json:"lru_size" env:"GATEWAY_STORAGE_LRU_SIZE"`
	MaxObjectBytes int64       `json:"max_object_bytes" env:"GATEWAY_STORAGE_MAX_OBJECT_BYTES"`
	Redis          RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr      string `json:"addr" env:"GATEWAY_REDIS_ADDR"`
	Password  string `json:"password" env:"GATEWAY_REDIS_PASSWORD"`
	DB        int    `json:"db" env:"GATEWAY_REDIS_DB"`
	KeyPrefix string `json:"key_prefix" env:"GATEWAY_REDIS_KEY_PREFIX"`
}

type TimeoutsConfig struct {
	NetworkMS   int `json:"network_timeout_ms" env:"GATEWAY_NETWORK_TIMEOUT_MS"`
	InstallMS   int `json:"install_timeout_ms" env:"GATEWAY_INSTALL_TIMEOUT_MS"`
	WriteBackMS int `json:"write_back_timeout_ms" env:"GATEWAY_WRITE_BACK_TIMEOUT_MS"`
}

func (t TimeoutsConfig) Network() time.Duration {
	return time.Duration(t.NetworkMS) * time.Millisecond
}

func (t TimeoutsConfig) Install() time.Duration {
	return time.Duration(t.InstallMS) * time.Millisecond
}

func (t TimeoutsConfig) WriteBack() time.Duration {
	return time.Duration(t.WriteBackMS) * time.Millisecond
}

// BreakerConfig opts into failing fast while the origin is unreachable.
// Zero values fall back to the breaker's defaults.
type BreakerConfig struct {
	Enabled            bool `json:"enabled" env:"GATEWAY_ORIGIN_BREAKER_ENABLED"`
	FailureRatePercent int  `json:"failure_rate_percent"`
	MinimumRequests    int  `json:"minimum_requests"`
	WindowMS           int  `json:"window_ms"`
	OpenMS             int  `json:"open_ms" env:"GATEWAY_ORIGIN_BREAKER_OPEN_MS"`
	HalfOpenProbes     int  `json:"half_open_probes"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int    `json:"max_header_bytes"`
	MaxHeaderCount      int    `json:"max_header_count"`
	MaxURLBytes         int    `json:"max_url_bytes"`
	MaxBodyBytes        *int64 `json:"max_body_bytes"`
	ReadHeaderTimeoutMS int    `json:"read_header_timeout_ms"`
	ReadTimeoutMS       int    `json:"read_timeout_ms"`
	WriteTimeoutMS      int    `json:"write_timeout_ms"`
	IdleTimeoutMS       int    `json:"idle_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `json:"drain_ms" env:"GATEWAY_SHUTDOWN_DRAIN_MS"`
	GracefulTimeoutMS int `json:"graceful_timeout_ms" env:"GATEWAY_SHUTDOWN_GRACEFUL_TIMEOUT_MS"`
	ForceCloseMS      int `json:"force_close_ms" env:"GATEWAY_SHUTDOWN_FORCE_CLOSE_MS"`
}

type LogConfig struct {
	Level  string `json:"level" env:"GATEWAY_LOG_LEVEL"`
	Format string `json:"format" env:"GATEWAY_LOG_FORMAT"`
	Output string `json:"output" env:"GATEWAY_LOG_OUTPUT"`
}

type TLSConfig struct {
	Enabled  bool   `json:"enabled" env:"GATEWAY_TLS_ENABLED"`
	CertFile string `json:"cert_file" env:"GATEWAY_TLS_CERT_FILE"`
	KeyFile  string `json:"key_file" env:"GATEWAY_TLS_KEY_FILE"`
}

type AdminConfig struct {
	// TokenEnv names the variable holding the bearer token for the admin API.
	TokenEnv string `json:"token_env"`
	// ReadTokenEnv optionally names a second token that may only read state,
	// list stores and scrape metrics.
	ReadTokenEnv string `json:"read_token_env"`
	CertFile     string `json:"cert_file" env:"GATEWAY_ADMIN_CERT_FILE"`
	KeyFile      string `json:"key_file" env:"GATEWAY_ADMIN_KEY_FILE"`
	ClientCAFile string `json:"client_ca_file" env:"GATEWAY_ADMIN_CLIENT_CA_FILE"`
}

func (a AdminConfig) Token() string {
	name := a.TokenEnv
	if name == "" {
		name = DefaultAdminTokenEnv
	}
	return os.Getenv(name)
}

func (a AdminConfig) ReadToken() string {
	if a.ReadTokenEnv == "" {
		return ""
	}
	return os.Getenv(a.ReadTokenEnv)
}

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from GATEWAY_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the JSON file at path, applies env overrides and defaults, and
// validates the result. An empty path starts from an empty config.
func Load(path string) (*Config, []string, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err = ParseJSON(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, nil, err
	}
	ApplyDefaults(cfg)
	warnings, err := Validate(cfg)
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.StorePrefix == "" {
		cfg.StorePrefix = DefaultStorePrefix
	}
	if cfg.ControlScriptPath == "" {
		cfg.ControlScriptPath = DefaultControlScriptPath
	}
	if cfg.PrecacheConcurrency == 0 {
		cfg.PrecacheConcurrency = DefaultPrecacheConcurrency
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultBackend
	}
	if cfg.Storage.Backend == BackendLRU && cfg.Storage.LRUSize == 0 {
		cfg.Storage.LRUSize = DefaultLRUSize
	}
	if cfg.Timeouts.NetworkMS == 0 {
		cfg.Timeouts.NetworkMS = DefaultNetworkTimeoutMS
	}
	if cfg.Timeouts.InstallMS == 0 {
		cfg.Timeouts.InstallMS = DefaultInstallTimeoutMS
	}
	if cfg.Timeouts.WriteBackMS == 0 {
		cfg.Timeouts.WriteBackMS = DefaultWriteBackTimeoutMS
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Admin.TokenEnv == "" {
		cfg.Admin.TokenEnv = DefaultAdminTokenEnv
	}
}
