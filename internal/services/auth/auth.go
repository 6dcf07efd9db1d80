// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account workflows: registration, login, session
// checks and the OTP guarded reset, verification and deletion flows.
package auth

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/metrics"
	"codeberg.org/oliverandrich/authcore/internal/models"
	"codeberg.org/oliverandrich/authcore/internal/services/otp"
	"codeberg.org/oliverandrich/authcore/internal/services/session"
)

// AccountStore is the persistence the workflows run against. UpdateAccount,
// UpdateAccountByEmail and DeleteAccount must apply fn/check and the write as
// one atomic step per record.
type AccountStore interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, id string, fn func(*models.Account) error) (*models.Account, error)
	UpdateAccountByEmail(ctx context.Context, email string, fn func(*models.Account) error) (*models.Account, error)
	DeleteAccount(ctx context.Context, id string, check func(*models.Account) error) error
}

// Notifier delivers a mail to an account holder.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// TokenService issues and checks session tokens.
type TokenService interface {
	Issue(accountID string) (string, time.Time, error)
	Check(token string) (*session.Claims, session.Status)
}

// CodeGenerator produces OTP codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Session is a freshly issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	store    AccountStore
	notifier Notifier
	hasher   PasswordHasher
	tokens   TokenService
	codes    CodeGenerator
	now      func() time.Time

	// dummyHash is compared against on unknown emails to even out login timing.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for OTP expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodeGenerator overrides the OTP code source.
func WithCodeGenerator(codes CodeGenerator) Option {
	return func(s *Service) {
		s.codes = codes
	}
}

func NewService(store AccountStore, notifier Notifier, hasher PasswordHasher, tokens TokenService, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		hasher:   hasher,
		tokens:   tokens,
		codes:    otp.NewGenerator(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if hash, err := hasher.Hash("dummy-password-for-timing"); err == nil {
		s.dummyHash = hash
	}
	return s
}

// observe records the outcome and duration of an operation.
func observe(event string, start time.Time, err error) {
	metrics.RecordAuthDuration(event, time.Since(start))
	switch {
	case err == nil:
		metrics.RecordAuthEvent(event, metrics.OutcomeSuccess)
	case IsClientError(err):
		metrics.RecordAuthEvent(event, metrics.OutcomeClient)
	default:
		metrics.RecordAuthEvent(event, metrics.OutcomeError)
	}
}
