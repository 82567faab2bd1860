package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `{
  "origin": "http://127.0.0.1:9000",
  "version": "v2",
  "store_prefix": "njugush",
  "precache_assets": ["/", "/index.html", "/logo.png"],
  "storage": {"backend": "leveldb", "path": "/var/lib/gateway/cache"},
  "timeouts": {"network_timeout_ms": 3000}
}`

func TestParseJSONAndDefaults(t *testing.T) {
	cfg, err := ParseJSON([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ApplyDefaults(cfg)

	if cfg.ListenAddr != DefaultListenAddr || cfg.ControlScriptPath != "/sw.js" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Timeouts.NetworkMS != 3000 || cfg.Timeouts.InstallMS != DefaultInstallTimeoutMS {
		t.Fatalf("unexpected timeouts %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Network().Seconds() != 3 {
		t.Fatalf("unexpected network duration %v", cfg.Timeouts.Network())
	}
	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings %v", warnings)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.json")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GATEWAY_VERSION", "v3")
	t.Setenv("GATEWAY_STORAGE_BACKEND", "memory")
	t.Setenv("GATEWAY_PRECACHE_ASSETS", "/a.css,/b.js")
	t.Setenv("GATEWAY_WRITE_BACK_TIMEOUT_MS", "250")

	cfg, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != "v3" || cfg.Storage.Backend != BackendMemory {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.PrecacheAssets) != 2 || cfg.PrecacheAssets[1] != "/b.js" {
		t.Fatalf("unexpected assets %v", cfg.PrecacheAssets)
	}
	if cfg.Timeouts.WriteBackMS != 250 || cfg.StorePrefix != "njugush" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "does not survive restarts") {
		t.Fatalf("expected memory backend warning, got %v", warnings)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	negative := int64(-1)
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing origin", mutate: func(c *Config) { c.Origin = "" }, want: "origin is required"},
		{name: "origin scheme", mutate: func(c *Config) { c.Origin = "ftp://files" }, want: "origin scheme"},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, want: "version is required"},
		{name: "hyphen version", mutate: func(c *Config) { c.Version = "v2-beta" }, want: "must not contain hyphens"},
		{name: "absolute asset", mutate: func(c *Config) { c.PrecacheAssets = []string{"https://cdn.test/a.js"} }, want: "origin-relative"},
		{name: "relative asset", mutate: func(c *Config) { c.PrecacheAssets = []string{"logo.png"} }, want: "origin-relative"},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "not supported"},
		{name: "sqlite path", mutate: func(c *Config) { c.Storage.Backend = BackendSQLite; c.Storage.Path = "" }, want: "storage.path is required"},
		{name: "redis addr", mutate: func(c *Config) { c.Storage.Backend = BackendRedis }, want: "redis.addr is required"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeouts.NetworkMS = -1 }, want: "network_timeout_ms"},
		{name: "breaker rate", mutate: func(c *Config) { c.OriginBreaker.FailureRatePercent = 150 }, want: "failure_rate_percent"},
		{name: "body limit", mutate: func(c *Config) { c.Limits.MaxBodyBytes = &negative }, want: "max_body_bytes"},
		{name: "header timeout", mutate: func(c *Config) { c.Limits.MaxURLBytes = 10 }, want: "read_header_timeout_ms"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
		{name: "tls files", mutate: func(c *Config) { c.TLS.Enabled = true; c.TLSListenAddr = ":8443" }, want: "cert_file"},
		{name: "admin token", mutate: func(c *Config) { c.AdminListenAddr = ":9090"; c.Admin.TokenEnv = "GATEWAY_TEST_UNSET_TOKEN" }, want: "admin token missing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseJSON([]byte(sampleConfig))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.mutate(cfg)
			ApplyDefaults(cfg)
			_, err = Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg, _ := ParseJSON([]byte(sampleConfig))
	cfg.PrecacheAssets = []string{"/a.js", "/a.js"}
	cfg.KeepStaleStores = true
	cfg.Timeouts.InstallMS = 1000
	ApplyDefaults(cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	joined := strings.Join(warnings, "\n")
	for _, want := range []string{"listed twice", "keep_stale_stores", "exceeds install_timeout_ms"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected warning %q in %v", want, warnings)
		}
	}
}

func TestAdminTokenFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_TEST_ADMIN_TOKEN", "secret")
	cfg, _ := ParseJSON([]byte(sampleConfig))
	cfg.AdminListenAddr = "127.0.0.1:9090"
	cfg.Admin.TokenEnv = "GATEWAY_TEST_ADMIN_TOKEN"
	ApplyDefaults(cfg)
	if _, err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Admin.Token() != "secret" {
		t.Fatalf("unexpected token %q", cfg.Admin.Token())
	}
}
