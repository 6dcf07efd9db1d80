// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Test App",
		TLS:      "starttls",
	}
}

func TestNewService(t *testing.T) {
	svc, err := NewService(validSMTPConfig())

	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewService_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := NewService(cfg)

	assert.ErrorIs(t, err, ErrMissingHost)
}

func TestNewService_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := NewService(cfg)

	assert.ErrorIs(t, err, ErrMissingFrom)
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		tls      string
		username string
		expected int
	}{
		{"starttls with auth", "starttls", "testuser", 6},
		{"implicit tls with auth", "tls", "testuser", 6},
		{"no tls without auth", "none", "", 3},
		{"default policy", "", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSMTPConfig()
			cfg.TLS = tt.tls
			cfg.Username = tt.username
			svc, err := NewService(cfg)
			require.NoError(t, err)

			assert.Len(t, svc.clientOptions(), tt.expected)
		})
	}
}

func TestClientOptions_BuildClient(t *testing.T) {
	svc, err := NewService(validSMTPConfig())
	require.NoError(t, err)

	client, err := mail.NewClient("smtp.example.com", svc.clientOptions()...)

	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewMessage(t *testing.T) {
	msg, err := newMessage("Test App", "noreply@example.com", "user@example.com", "Hello", "Body text")
	require.NoError(t, err)

	assert.Equal(t, []string{"<user@example.com>"}, msg.GetToString())

	from := msg.GetFromString()
	require.Len(t, from, 1)
	assert.Contains(t, from[0], "noreply@example.com")
	assert.Contains(t, from[0], "Test App")

	assert.Equal(t, []string{"Hello"}, msg.GetGenHeader(mail.HeaderSubject))
}

func TestNewMessage_InvalidRecipient(t *testing.T) {
	_, err := newMessage("", "noreply@example.com", "not an address", "Hello", "Body")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting to address")
}

func TestConsoleSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewConsoleSender(&buf, "")

	err := sender.Send(context.Background(), "user@example.com", "Your code", "Your OTP is 123456.")

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: Your code")
	assert.Contains(t, out, "user@example.com")
	assert.Contains(t, out, "noreply@localhost")
	assert.Contains(t, out, "123456")
}

func TestConsoleSender_ImplementsSender(t *testing.T) {
	var _ Sender = NewConsoleSender(&bytes.Buffer{}, "a@b.c")
	var _ Sender = &Service{}
}
