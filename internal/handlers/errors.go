// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// Response is the JSON envelope of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK writes a successful envelope with message.
func OK(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{Success: true, Message: message})
}

// Fail writes a failed envelope with message.
func Fail(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{Success: false, Message: message})
}

// Error maps err to a status and a stable message. Internal failures are
// logged and answered with fallback.
func Error(c echo.Context, err error, fallback string) error {
	code, message := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request_failed",
			"path", c.Path(),
			"error", err,
		)
		message = fallback
	}
	return Fail(c, code, message)
}

func statusFor(err error) (int, string) {
	var missing *auth.MissingFieldError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, "Missing required fields: " + strings.Join(missing.Fields, ", ")
	case errors.Is(err, auth.ErrMissingField):
		return http.StatusBadRequest, "All fields are required"
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email format"
	case errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusBadRequest, "Password is too long"
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusBadRequest, "User already exists with this email"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, auth.ErrBadCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrInvalidOtp):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, auth.ErrExpiredOtp):
		return http.StatusBadRequest, "OTP has expired"
	case errors.Is(err, auth.ErrAlreadyVerified):
		return http.StatusBadRequest, "User is already verified"
	case errors.Is(err, auth.ErrNoToken):
		return http.StatusUnauthorized, "Unauthorized! Login again"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, "Forbidden"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
