package tls

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Enabled: true,
		Domains: []string{"geofence.example.com"},
		Email:   "ops@example.com",
		DNS:     DNSConfig{SubscriptionID: "sub", ResourceGroupName: "rg"},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"disabled ignores fields", func(c *Config) { *c = Config{} }, false},
		{"no domains", func(c *Config) { c.Domains = nil }, true},
		{"no email", func(c *Config) { c.Email = "" }, true},
		{"no subscription", func(c *Config) { c.DNS.SubscriptionID = "" }, true},
		{"no resource group", func(c *Config) { c.DNS.ResourceGroupName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewServerDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	s, err := NewServer(Config{}, handler, Timeouts{Read: time.Second}, logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if s.TLSConfig() != nil {
		t.Error("TLSConfig() should be nil when TLS is disabled")
	}
	if err := s.ManageCertificates(context.Background()); err != nil {
		t.Errorf("ManageCertificates() error = %v, want nil when disabled", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() before start error = %v", err)
	}
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := NewServer(Config{Enabled: true}, http.NotFoundHandler(), Timeouts{}, logger); err == nil {
		t.Error("NewServer() should reject TLS without domains")
	}
}
