// Package tls serves the API over HTTPS with certificates managed by
// CertMagic, solving ACME DNS-01 challenges through Azure DNS.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Enabled  bool
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool
	DNS      DNSConfig
}

// DNSConfig holds Azure DNS provider configuration for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // User assigned managed identity; empty means system assigned
}

// Validate checks that an enabled configuration can obtain certificates.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Domains) == 0 {
		return errors.New("TLS enabled but no domains specified")
	}
	if c.Email == "" {
		return errors.New("TLS enabled but no email specified")
	}
	if c.DNS.SubscriptionID == "" || c.DNS.ResourceGroupName == "" {
		return errors.New("TLS enabled but Azure DNS subscription or resource group missing")
	}
	return nil
}

// Timeouts configures the wrapped http.Server.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Server wraps an HTTP server that switches to HTTPS when TLS is enabled.
type Server struct {
	config Config
	magic  *certmagic.Config
	server *http.Server
	logger *slog.Logger
}

// NewServer creates the server. With TLS disabled it serves plain HTTP.
func NewServer(cfg Config, handler http.Handler, timeouts Timeouts, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Handler:           handler,
			ReadTimeout:       timeouts.Read,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if !cfg.Enabled {
		return s, nil
	}

	if cfg.CacheDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}
	magic := certmagic.NewDefault()

	ca := certmagic.LetsEncryptProductionCA
	if cfg.Staging {
		ca = certmagic.LetsEncryptStagingCA
	}

	issuer := certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
		CA:     ca,
		Email:  cfg.Email,
		Agreed: true,
		DNS01Solver: &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &azure.Provider{
					SubscriptionId:    cfg.DNS.SubscriptionID,
					ResourceGroupName: cfg.DNS.ResourceGroupName,
					ClientId:          cfg.DNS.ClientID,
				},
			},
		},
	})
	magic.Issuers = []certmagic.Issuer{issuer}

	tlsConfig := magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)

	s.magic = magic
	s.server.TLSConfig = tlsConfig
	return s, nil
}

// ManageCertificates obtains or renews certificates for the configured
// domains before the listener starts.
func (s *Server) ManageCertificates(ctx context.Context) error {
	if s.magic == nil {
		return nil
	}

	s.logger.Info("obtaining certificates", "domains", s.config.Domains)
	if err := s.magic.ManageSync(ctx, s.config.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}
	s.logger.Info("certificates ready", "domains", s.config.Domains)
	return nil
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr

	var err error
	if s.magic == nil {
		s.logger.Info("starting HTTP server", "address", addr, "tls", false)
		err = s.server.ListenAndServe()
	} else {
		s.logger.Info("starting HTTPS server", "address", addr, "domains", s.config.Domains)
		err = s.server.ListenAndServeTLS("", "")
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration, nil when TLS is disabled.
func (s *Server) TLSConfig() *tls.Config {
	return s.server.TLSConfig
}
