// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

var (
	errInsecureProduction = errors.New("production sessions need HTTPS: configure certificates or ACME, or set tls-behind-proxy")
	errUnknownTLSMode     = errors.New("unknown tls mode")
	errACMEEmail          = errors.New("acme mode requires tls-email")
	errManualFiles        = errors.New("manual TLS mode requires both cert-file and key-file")
)

// TLSMode is how the listener is secured.
type TLSMode string

const (
	TLSModeOff    TLSMode = "off"
	TLSModeACME   TLSMode = "acme"
	TLSModeManual TLSMode = "manual"
)

// TLSResult is the resolved listener setup.
type TLSResult struct {
	Config *tls.Config
	// ChallengeHandler answers ACME HTTP-01 challenges on :80 and redirects
	// everything else to HTTPS. Nil outside ACME mode.
	ChallengeHandler http.Handler
	Mode             TLSMode
}

// SetupTLS resolves the TLS mode and loads what it needs. Production
// cookies are Secure and SameSite=None, so production refuses plain HTTP
// unless a proxy terminates TLS in front of the server.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	mode, err := resolveTLSMode(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("tls_mode", "mode", mode, "env", cfg.App.Env, "behind_proxy", cfg.TLS.BehindProxy)

	switch mode {
	case TLSModeACME:
		return setupACME(cfg)
	case TLSModeManual:
		return setupManual(cfg)
	default:
		return &TLSResult{Mode: TLSModeOff}, nil
	}
}

func resolveTLSMode(cfg *config.Config) (TLSMode, error) {
	switch strings.ToLower(cfg.TLS.Mode) {
	case "off":
		return plainHTTP(cfg)
	case "acme":
		return TLSModeACME, nil
	case "manual":
		return TLSModeManual, nil
	case "auto", "":
	default:
		return "", fmt.Errorf("%w: %q", errUnknownTLSMode, cfg.TLS.Mode)
	}

	if !cfg.IsProduction() && config.IsLocalhost(cfg.Server.Host) {
		return TLSModeOff, nil
	}
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		return TLSModeManual, nil
	}
	if acmeEligible(cfg) {
		return TLSModeACME, nil
	}
	return plainHTTP(cfg)
}

func plainHTTP(cfg *config.Config) (TLSMode, error) {
	if cfg.IsProduction() && !cfg.TLS.BehindProxy {
		return "", errInsecureProduction
	}
	if !cfg.TLS.BehindProxy && !config.IsLocalhost(cfg.Server.Host) {
		slog.Warn("serving plain HTTP on a public host", "host", cfg.Server.Host)
	}
	return TLSModeOff, nil
}

// acmeEligible reports whether auto mode can obtain a Let's Encrypt
// certificate: a DNS name, a contact email and free ports 80 and 443.
func acmeEligible(cfg *config.Config) bool {
	host := cfg.Server.Host
	if config.IsLocalhost(host) || net.ParseIP(host) != nil || cfg.TLS.Email == "" {
		return false
	}
	return portsFree(80, 443) == nil
}

func portsFree(ports ...int) error {
	lc := &net.ListenConfig{}
	for _, port := range ports {
		ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("port %d unavailable: %w", port, err)
		}
		_ = ln.Close()
	}
	return nil
}

// setupACME serves HTTPS on :443 with autocert. The configured port is
// ignored in this mode.
func setupACME(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.Email == "" {
		return nil, errACMEEmail
	}
	if err := portsFree(80, 443); err != nil {
		return nil, fmt.Errorf("acme mode: %w", err)
	}
	if cfg.Server.Port != 443 {
		slog.Warn("acme mode listens on :443", "configured_port", cfg.Server.Port)
	}

	certDir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	slog.Info("acme_enabled", "host", cfg.Server.Host, "email", cfg.TLS.Email)
	return &TLSResult{
		Mode:             TLSModeACME,
		Config:           tlsConfig,
		ChallengeHandler: manager.HTTPHandler(nil),
	}, nil
}

func setupManual(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, errManualFiles
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if len(cert.Certificate) > 0 {
		slog.Info("certificate_loaded",
			"cert", cfg.TLS.CertFile,
			"sha256", fmt.Sprintf("%X", sha256.Sum256(cert.Certificate[0])),
		)
	}

	return &TLSResult{
		Mode: TLSModeManual,
		Config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}
