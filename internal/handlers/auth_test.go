// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/appcontext"
	"codeberg.org/oliverandrich/authcore/internal/config"
	"codeberg.org/oliverandrich/authcore/internal/handlers"
	"codeberg.org/oliverandrich/authcore/internal/repository"
	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"codeberg.org/oliverandrich/authcore/internal/services/password"
	"codeberg.org/oliverandrich/authcore/internal/services/session"
	"codeberg.org/oliverandrich/authcore/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	e        *echo.Echo
	auth     *handlers.AuthHandlers
	user     *handlers.UserHandlers
	svc      *auth.Service
	repo     *repository.Repository
	sessions *session.Manager
	mail     *testutil.RecordingSender
	clock    *testutil.Clock
}

func newTestEnv(t *testing.T, codes ...string) *testEnv {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{"123456"}
	}

	clock := testutil.NewClock()
	_, repo := testutil.NewTestDB(t, repository.WithClock(clock.Now))
	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "token",
		MaxAge:     604800,
		Secret:     "handler-test-secret-handler-test",
	}, false, session.WithClock(clock.Now))
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}
	svc := auth.NewService(repo, sender, password.NewHasher(), sessions,
		auth.WithClock(clock.Now),
		auth.WithCodeGenerator(testutil.NewSequenceCodes(codes...)),
	)

	return &testEnv{
		e:        echo.New(),
		auth:     handlers.NewAuth(svc, sessions),
		user:     handlers.NewUser(svc),
		svc:      svc,
		repo:     repo,
		sessions: sessions,
		mail:     sender,
		clock:    clock,
	}
}

// newTestContext creates an appcontext.Context for an authenticated request.
func (env *testEnv) newTestContext(method, path, body, accountID string) (*appcontext.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return &appcontext.Context{Context: env.e.NewContext(req, rec), AccountID: accountID}, rec
}

func (env *testEnv) register(t *testing.T) string {
	t.Helper()
	account, _, err := env.svc.Register(t.Context(), auth.RegisterParams{Name: "Ann", Email: "ann@x.com", Password: "pw1"})
	require.NoError(t, err)
	return account.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	return nil
}

func TestNewAuth(t *testing.T) {
	env := newTestEnv(t)
	assert.NotNil(t, env.auth)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/register",
		strings.NewReader(`{"name":"Ann","email":"ann@x.com","password":"pw1"}`))

	require.NoError(t, env.auth.Register(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "User registered successfully", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "ann@x.com", user["email"])
	assert.NotContains(t, user, "token")

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 604800, cookie.MaxAge)

	_, status := env.sessions.Check(cookie.Value)
	assert.Equal(t, session.StatusValid, status)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"missing fields", `{"email":"ann@x.com"}`, http.StatusBadRequest, "Missing required fields: name, password"},
		{"invalid email", `{"name":"Ann","email":"nope","password":"pw1"}`, http.StatusBadRequest, "Invalid email format"},
		{"duplicate", `{"name":"Ann","email":"ann@x.com","password":"pw1"}`, http.StatusBadRequest, "User already exists with this email"},
		{"malformed body", `{"name":`, http.StatusBadRequest, "Invalid request"},
		{"password too long", `{"name":"Ann","email":"new@x.com","password":"` + strings.Repeat("x", 73) + `"}`, http.StatusBadRequest, "Password is too long"},
	}

	env := newTestEnv(t)
	env.register(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/register", strings.NewReader(tt.body))

			require.NoError(t, env.auth.Register(c))

			assert.Equal(t, tt.code, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t)
	c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"ann@x.com","password":"pw1"}`))

	require.NoError(t, env.auth.Login(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Login successful", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, id, user["id"])
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, false, user["isAdmin"])
	assert.Equal(t, false, user["isVerified"])
	require.NotEmpty(t, user["token"])

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, user["token"], cookie.Value)
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"wrong password", `{"email":"ann@x.com","password":"wrong"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown email", `{"email":"bob@x.com","password":"pw1"}`, http.StatusNotFound, "User not found"},
		{"missing password", `{"email":"ann@x.com"}`, http.StatusBadRequest, "Missing required fields: password"},
	}

	env := newTestEnv(t)
	env.register(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/login", strings.NewReader(tt.body))

			require.NoError(t, env.auth.Login(c))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["message"])
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	c, rec := testutil.NewEchoContextWithCookie(env.e, http.MethodPost, "/auth/logout", nil,
		&http.Cookie{Name: "token", Value: "whatever"})

	require.NoError(t, env.auth.Logout(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logout successful", decode(t, rec)["message"])
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestVerifyFlow(t *testing.T) {
	env := newTestEnv(t, "654321")
	id := env.register(t)

	c, rec := env.newTestContext(http.MethodPost, "/auth/send-verify-otp", "", id)
	require.NoError(t, env.auth.SendVerifyOtp(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Verification OTP sent successfully", decode(t, rec)["message"])

	c, rec = env.newTestContext(http.MethodPost, "/auth/verify-account", `{"otp":"000000"}`, id)
	require.NoError(t, env.auth.VerifyAccount(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP", decode(t, rec)["message"])

	c, rec = env.newTestContext(http.MethodPost, "/auth/verify-account", `{"otp":"654321"}`, id)
	require.NoError(t, env.auth.VerifyAccount(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email verified successfully", decode(t, rec)["message"])

	c, rec = env.newTestContext(http.MethodPost, "/auth/send-verify-otp", "", id)
	require.NoError(t, env.auth.SendVerifyOtp(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User is already verified", decode(t, rec)["message"])
}

func TestVerifyAccount_Expired(t *testing.T) {
	env := newTestEnv(t, "654321")
	id := env.register(t)
	c, _ := env.newTestContext(http.MethodPost, "/auth/send-verify-otp", "", id)
	require.NoError(t, env.auth.SendVerifyOtp(c))

	env.clock.Advance(10 * time.Minute)

	c, rec := env.newTestContext(http.MethodPost, "/auth/verify-account", `{"otp":"654321"}`, id)
	require.NoError(t, env.auth.VerifyAccount(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP has expired", decode(t, rec)["message"])
}

func TestSendVerifyOtp_MailFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t)
	env.mail.Err = assert.AnError

	c, rec := env.newTestContext(http.MethodPost, "/auth/send-verify-otp", "", id)
	require.NoError(t, env.auth.SendVerifyOtp(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send verification OTP", decode(t, rec)["message"])
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestIsAuth(t *testing.T) {
	env := newTestEnv(t)
	c, rec := env.newTestContext(http.MethodPost, "/auth/is-auth", "", "acc-1")

	require.NoError(t, env.auth.IsAuth(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "acc-1", body["userId"])
}

func TestResetFlow(t *testing.T) {
	env := newTestEnv(t, "246810")
	env.register(t)

	c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/send-reset-otp", strings.NewReader(`{"email":"ann@x.com"}`))
	require.NoError(t, env.auth.SendResetOtp(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reset OTP sent successfully", decode(t, rec)["message"])

	reset := `{"email":"ann@x.com","otp":"246810","newPassword":"newpw"}`
	c, rec = testutil.NewEchoContext(env.e, http.MethodPost, "/auth/reset-password", strings.NewReader(reset))
	require.NoError(t, env.auth.ResetPassword(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password reset successfully", decode(t, rec)["message"])

	c, rec = testutil.NewEchoContext(env.e, http.MethodPost, "/auth/reset-password", strings.NewReader(reset))
	require.NoError(t, env.auth.ResetPassword(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP", decode(t, rec)["message"])

	c, rec = testutil.NewEchoContext(env.e, http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ann@x.com","password":"newpw"}`))
	require.NoError(t, env.auth.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendResetOtp_Errors(t *testing.T) {
	env := newTestEnv(t)

	c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/send-reset-otp", strings.NewReader(`{}`))
	require.NoError(t, env.auth.SendResetOtp(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = testutil.NewEchoContext(env.e, http.MethodPost, "/auth/send-reset-otp", strings.NewReader(`{"email":"nobody@x.com"}`))
	require.NoError(t, env.auth.SendResetOtp(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec)["message"])
}

func TestResetPassword_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	c, rec := testutil.NewEchoContext(env.e, http.MethodPost, "/auth/reset-password", strings.NewReader(`{"email":"ann@x.com"}`))

	require.NoError(t, env.auth.ResetPassword(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields: otp, newPassword", decode(t, rec)["message"])
}

func TestDeleteFlow(t *testing.T) {
	env := newTestEnv(t, "135790")
	id := env.register(t)

	c, rec := env.newTestContext(http.MethodPost, "/auth/send-delete-account-otp", `{"email":"someone@x.com"}`, id)
	require.NoError(t, env.auth.SendDeleteAccountOtp(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = env.newTestContext(http.MethodPost, "/auth/send-delete-account-otp", `{"email":"ann@x.com"}`, id)
	require.NoError(t, env.auth.SendDeleteAccountOtp(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Delete account OTP sent successfully", decode(t, rec)["message"])

	c, rec = env.newTestContext(http.MethodDelete, "/auth/delete-account", `{}`, id)
	require.NoError(t, env.auth.DeleteAccount(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = env.newTestContext(http.MethodDelete, "/auth/delete-account", `{"otp":"135790"}`, id)
	require.NoError(t, env.auth.DeleteAccount(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User account deleted successfully", decode(t, rec)["message"])
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge)

	_, err := env.repo.GetAccountByID(t.Context(), id)
	require.ErrorIs(t, err, repository.ErrNotFound)

	c, rec = env.newTestContext(http.MethodDelete, "/auth/delete-account", `{"otp":"135790"}`, id)
	require.NoError(t, env.auth.DeleteAccount(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
