// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"github.com/wneessen/go-mail"
)

const sendTimeout = 15 * time.Second

var (
	ErrMissingHost = errors.New("SMTP host is required")
	ErrMissingFrom = errors.New("SMTP from address is required")
)

// Sender delivers a plain-text mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service sends mail via SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new SMTP email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, ErrMissingHost
	}
	if cfg.From == "" {
		return nil, ErrMissingFrom
	}
	return &Service{cfg: cfg}, nil
}

// Send delivers a mail via SMTP using go-mail.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	msg, err := newMessage(s.cfg.FromName, s.cfg.From, to, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(sendTimeout),
	}

	switch strings.ToLower(s.cfg.TLS) {
	case "tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

func newMessage(fromName, from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if fromName != "" {
		if err := msg.FromFormat(fromName, from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return msg, nil
}

// ConsoleSender writes complete messages to w instead of delivering them.
// It is used when no SMTP host is configured.
type ConsoleSender struct {
	mu   sync.Mutex
	w    io.Writer
	from string
}

// NewConsoleSender creates a ConsoleSender writing to w.
func NewConsoleSender(w io.Writer, from string) *ConsoleSender {
	if from == "" {
		from = "noreply@localhost"
	}
	return &ConsoleSender{w: w, from: from}
}

func (c *ConsoleSender) Send(_ context.Context, to, subject, body string) error {
	msg, err := newMessage("", c.from, to, subject, body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := msg.WriteTo(c.w); err != nil {
		return fmt.Errorf("writing email: %w", err)
	}
	_, _ = io.WriteString(c.w, "\n")

	slog.Debug("mail_written_to_console", "to", to)
	return nil
}
