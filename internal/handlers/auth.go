// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/authcore/internal/appcontext"
	"codeberg.org/oliverandrich/authcore/internal/models"
	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"codeberg.org/oliverandrich/authcore/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sessions,
	}
}

// AccountSummary is the account as returned by register and login.
type AccountSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"isAdmin"`
	IsVerified bool   `json:"isVerified"`
	Token      string `json:"token,omitempty"`
}

// SessionResponse is returned after a session was issued.
type SessionResponse struct {
	Response
	User AccountSummary `json:"user"`
}

func summarize(a *models.Account, token string) AccountSummary {
	return AccountSummary{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		IsAdmin:    a.IsAdmin,
		IsVerified: a.IsVerified,
		Token:      token,
	}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and sets the session cookie.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	account, sess, err := h.auth.Register(c.Request().Context(), auth.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return Error(c, err, "Registration failed")
	}

	c.SetCookie(h.sessions.Cookie(sess.Token))
	return c.JSON(http.StatusCreated, SessionResponse{
		Response: Response{Success: true, Message: "User registered successfully"},
		User:     summarize(account, ""),
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the credentials and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	account, sess, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return Error(c, err, "Login failed")
	}

	c.SetCookie(h.sessions.Cookie(sess.Token))
	return c.JSON(http.StatusOK, SessionResponse{
		Response: Response{Success: true, Message: "Login successful"},
		User:     summarize(account, sess.Token),
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	h.auth.Logout(c.Request().Context(), h.sessions.TokenFromRequest(c.Request()))
	c.SetCookie(h.sessions.Clear())
	return OK(c, http.StatusOK, "Logout successful")
}

// SendVerifyOtp mails a verification code to the signed-in account.
func (h *AuthHandlers) SendVerifyOtp(c echo.Context) error {
	if err := h.auth.RequestEmailVerification(c.Request().Context(), appcontext.AccountID(c)); err != nil {
		return Error(c, err, "Failed to send verification OTP")
	}
	return OK(c, http.StatusOK, "Verification OTP sent successfully")
}

// OtpRequest is the request body of the flows that redeem a code.
type OtpRequest struct {
	OTP string `json:"otp"`
}

// VerifyAccount redeems the verification code.
func (h *AuthHandlers) VerifyAccount(c echo.Context) error {
	var req OtpRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	if err := h.auth.VerifyEmail(c.Request().Context(), appcontext.AccountID(c), req.OTP); err != nil {
		return Error(c, err, "Email verification failed")
	}
	return OK(c, http.StatusOK, "Email verified successfully")
}

// IsAuthResponse reports the account of a valid session.
type IsAuthResponse struct {
	Response
	UserID string `json:"userId"`
}

// IsAuth answers for requests that passed RequireAuth.
func (h *AuthHandlers) IsAuth(c echo.Context) error {
	return c.JSON(http.StatusOK, IsAuthResponse{
		Response: Response{Success: true, Message: "User is authenticated"},
		UserID:   appcontext.AccountID(c),
	})
}

// EmailRequest is the request body of the flows keyed by email.
type EmailRequest struct {
	Email string `json:"email"`
}

// SendResetOtp mails a password reset code.
func (h *AuthHandlers) SendResetOtp(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return Error(c, err, "Failed to send reset OTP")
	}
	return OK(c, http.StatusOK, "Reset OTP sent successfully")
}

// ResetPasswordRequest is the request body for a password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword redeems the reset code and sets the new password.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		return Error(c, err, "Password reset failed")
	}
	return OK(c, http.StatusOK, "Password reset successfully")
}

// SendDeleteAccountOtp mails an account deletion code. The email must be
// the one of the signed-in account.
func (h *AuthHandlers) SendDeleteAccountOtp(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	if err := h.auth.RequestAccountDeletion(c.Request().Context(), appcontext.AccountID(c), req.Email); err != nil {
		return Error(c, err, "Failed to send delete account OTP")
	}
	return OK(c, http.StatusOK, "Delete account OTP sent successfully")
}

// DeleteAccount redeems the deletion code, removes the account and clears
// the session cookie.
func (h *AuthHandlers) DeleteAccount(c echo.Context) error {
	var req OtpRequest
	if err := c.Bind(&req); err != nil {
		return Fail(c, http.StatusBadRequest, "Invalid request")
	}

	if err := h.auth.DeleteAccount(c.Request().Context(), appcontext.AccountID(c), req.OTP); err != nil {
		return Error(c, err, "Failed to delete account")
	}

	c.SetCookie(h.sessions.Clear())
	return OK(c, http.StatusOK, "User account deleted successfully")
}
