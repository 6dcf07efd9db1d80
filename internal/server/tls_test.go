// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlsTestConfig(env, host string, tlsCfg config.TLSConfig) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: host, Port: 8080},
		App:    config.AppConfig{Env: env},
		TLS:    tlsCfg,
	}
}

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		host     string
		tls      config.TLSConfig
		expected TLSMode
	}{
		{"explicit off", config.EnvDevelopment, "example.com", config.TLSConfig{Mode: "off"}, TLSModeOff},
		{"explicit manual", config.EnvDevelopment, "example.com", config.TLSConfig{Mode: "manual"}, TLSModeManual},
		{"explicit acme", config.EnvDevelopment, "example.com", config.TLSConfig{Mode: "ACME"}, TLSModeACME},
		{"auto localhost", config.EnvDevelopment, "localhost", config.TLSConfig{Mode: "auto"}, TLSModeOff},
		{"auto with cert files", config.EnvDevelopment, "example.com", config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}, TLSModeManual},
		{"auto ip without certs", config.EnvDevelopment, "10.0.0.1", config.TLSConfig{}, TLSModeOff},
		{"production with cert files", config.EnvProduction, "example.com", config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}, TLSModeManual},
		{"production localhost with certs", config.EnvProduction, "localhost", config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}, TLSModeManual},
		{"production behind proxy", config.EnvProduction, "10.0.0.1", config.TLSConfig{BehindProxy: true}, TLSModeOff},
		{"production off behind proxy", config.EnvProduction, "example.com", config.TLSConfig{Mode: "off", BehindProxy: true}, TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := resolveTLSMode(tlsTestConfig(tt.env, tt.host, tt.tls))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestResolveTLSMode_ProductionRefusesPlainHTTP(t *testing.T) {
	tests := []struct {
		name string
		host string
		tls  config.TLSConfig
	}{
		{"explicit off", "example.com", config.TLSConfig{Mode: "off"}},
		{"auto without certificate source", "10.0.0.1", config.TLSConfig{}},
		{"auto on localhost", "localhost", config.TLSConfig{Mode: "auto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveTLSMode(tlsTestConfig(config.EnvProduction, tt.host, tt.tls))
			assert.ErrorIs(t, err, errInsecureProduction)
		})
	}
}

func TestResolveTLSMode_UnknownMode(t *testing.T) {
	_, err := resolveTLSMode(tlsTestConfig(config.EnvDevelopment, "localhost", config.TLSConfig{Mode: "bogus"}))

	assert.ErrorIs(t, err, errUnknownTLSMode)
}

func TestSetupTLS_Off(t *testing.T) {
	result, err := SetupTLS(tlsTestConfig(config.EnvDevelopment, "localhost", config.TLSConfig{Mode: "off"}))

	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, result.Mode)
	assert.Nil(t, result.Config)
	assert.Nil(t, result.ChallengeHandler)
}

func TestSetupTLS_ProductionWithoutTLS(t *testing.T) {
	_, err := SetupTLS(tlsTestConfig(config.EnvProduction, "example.com", config.TLSConfig{Mode: "off"}))

	assert.ErrorIs(t, err, errInsecureProduction)
}

func TestSetupTLS_ACMERequiresEmail(t *testing.T) {
	_, err := SetupTLS(tlsTestConfig(config.EnvProduction, "example.com", config.TLSConfig{Mode: "acme"}))

	assert.ErrorIs(t, err, errACMEEmail)
}

func TestSetupTLS_ManualMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := tlsTestConfig(config.EnvDevelopment, "example.com", config.TLSConfig{
		Mode:     "manual",
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	})

	_, err := SetupTLS(cfg)

	assert.ErrorContains(t, err, "failed to load certificate")
}

func TestSetupTLS_ManualRequiresBothFiles(t *testing.T) {
	cfg := tlsTestConfig(config.EnvDevelopment, "example.com", config.TLSConfig{Mode: "manual", CertFile: "cert.pem"})

	_, err := SetupTLS(cfg)

	assert.ErrorIs(t, err, errManualFiles)
}
