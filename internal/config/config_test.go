package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/mandor/internal/domain"
)

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Storage:  StorageConfig{Type: "local", LocalPath: "./data"},
		Database: DatabaseConfig{Path: ":memory:"},
		Map:      MapConfig{DefaultCenter: CenterConfig{Lat: -2.5489, Lng: 118.0149}},
		Cache:    CacheConfig{TTL: time.Minute},
		Sync:     SyncConfig{Enabled: true, Interval: time.Minute},
		Metrics:  MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("Storage.Type = %q, want local", cfg.Storage.Type)
	}
	if got := cfg.Map.DefaultCenter.Point(); got != (domain.GeoPoint{Lat: -2.5489, Lng: 118.0149}) {
		t.Errorf("DefaultCenter = %v, want (-2.5489, 118.0149)", got)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
	if cfg.Storage.HTTP.IndexFile != "index.txt" {
		t.Errorf("Storage.HTTP.IndexFile = %q, want index.txt", cfg.Storage.HTTP.IndexFile)
	}
}

func TestLoadEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	t.Setenv("MANDOR_SERVER_PORT", "9000")
	t.Setenv("MANDOR_MAP_DEFAULT_CENTER_LAT", "-5.45")
	t.Setenv("MANDOR_MAP_DEFAULT_CENTER_LNG", "105.26")
	t.Setenv("MANDOR_CACHE_TTL", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if got := cfg.Map.DefaultCenter.Point(); got != (domain.GeoPoint{Lat: -5.45, Lng: 105.26}) {
		t.Errorf("DefaultCenter = %v, want (-5.45, 105.26)", got)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("Cache.TTL = %v, want 90s", cfg.Cache.TTL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "mandor.yaml")
	content := `
server:
  port: 8181
  cors:
    allowed_origins:
      - "*.example.co.id"
    allowed_methods: [GET, OPTIONS]
storage:
  type: http
  local_path: /var/lib/mandor/exports
  http:
    base_url: https://exports.example.co.id
database:
  path: /var/lib/mandor/mandor.db
sync:
  interval: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want 8181", cfg.Server.Port)
	}
	if !cfg.Server.CORS.Enabled() {
		t.Error("CORS should be enabled")
	}
	if got := cfg.Server.CORS.Methods(); len(got) != 2 || got[0] != "GET" || got[1] != "OPTIONS" {
		t.Errorf("CORS.Methods() = %v, want [GET OPTIONS]", got)
	}
	if cfg.Storage.Type != "http" || cfg.Storage.HTTP.BaseURL != "https://exports.example.co.id" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Sync.Interval != 2*time.Minute {
		t.Errorf("Sync.Interval = %v, want 2m", cfg.Sync.Interval)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for an explicit missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantField string
	}{
		{"valid", func(_ *Config) {}, ""},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, "storage.type"},
		{"local without path", func(c *Config) { c.Storage.LocalPath = "" }, "storage.local_path"},
		{"s3 without bucket", func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3.Region = "ap-southeast-3"
		}, "storage.s3.bucket"},
		{"s3 valid", func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3 = S3Config{Bucket: "exports", Region: "ap-southeast-3"}
		}, ""},
		{"azure without account", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.Azure.Container = "exports"
		}, "storage.azure"},
		{"http without url", func(c *Config) { c.Storage.Type = "http" }, "storage.http.base_url"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"center latitude", func(c *Config) { c.Map.DefaultCenter.Lat = 95 }, "map.default_center.lat"},
		{"center longitude", func(c *Config) { c.Map.DefaultCenter.Lng = -190 }, "map.default_center.lng"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
		{"sync without interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"sync disabled without interval", func(c *Config) {
			c.Sync.Enabled = false
			c.Sync.Interval = 0
		}, ""},
		{"tls without domains", func(c *Config) {
			c.TLS.Enabled = true
			c.TLS.Email = "ops@example.co.id"
		}, "tls.domains"},
		{"tls without dns", func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, Domains: []string{"mandor.example.co.id"}, Email: "ops@example.co.id"}
		}, "tls.dns"},
		{"metrics on server port", func(c *Config) { c.Metrics.Port = 8080 }, "metrics.port"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"metrics disabled", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.Port = 0
		}, ""},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var configErr *domain.ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Validate() error = %v, want *domain.ConfigError", err)
			}
			if configErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", configErr.Field, tt.wantField)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := cfg.Address(); got != "127.0.0.1:8080" {
		t.Errorf("Address() = %q, want %q", got, "127.0.0.1:8080")
	}
}
