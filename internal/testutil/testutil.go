// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/database"
	"codeberg.org/oliverandrich/authcore/internal/models"
	"codeberg.org/oliverandrich/authcore/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates a migrated SQLite database in a temporary directory.
// A file is used instead of :memory: so concurrent tests share one database.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T, opts ...repository.Option) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db, opts...)
	return db, repo
}

// NewTestAccount creates an account with the given email and password.
func NewTestAccount(t *testing.T, repo *repository.Repository, email, password string) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	account := &models.Account{
		Name:         "Test User",
		Email:        email,
		PasswordHash: string(hash),
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mail is a message captured by RecordingSender.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// RecordingSender captures mails instead of delivering them.
type RecordingSender struct {
	mu    sync.Mutex
	mails []Mail
	Err   error
}

// Send records the mail, or fails with Err when set.
func (s *RecordingSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.mails = append(s.mails, Mail{To: to, Subject: subject, Body: body})
	return nil
}

// Mails returns a copy of all recorded mails.
func (s *RecordingSender) Mails() []Mail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mail(nil), s.mails...)
}

// Last returns the most recently recorded mail.
func (s *RecordingSender) Last() (Mail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mails) == 0 {
		return Mail{}, false
	}
	return s.mails[len(s.mails)-1], true
}

// SequenceCodes hands out the given codes in order, repeating the last one.
type SequenceCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

// NewSequenceCodes creates a code source yielding codes in order.
func NewSequenceCodes(codes ...string) *SequenceCodes {
	return &SequenceCodes{codes: codes}
}

// Generate returns the next code.
func (s *SequenceCodes) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.codes[s.next]
	if s.next < len(s.codes)-1 {
		s.next++
	}
	return code, nil
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithCookie creates an Echo context carrying a cookie.
func NewEchoContextWithCookie(e *echo.Echo, method, path string, body io.Reader, cookie *http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := NewEchoContext(e, method, path, body)
	if cookie != nil {
		c.Request().AddCookie(cookie)
	}
	return c, rec
}
