// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"fmt"
	"strings"

	"codeberg.org/oliverandrich/authcore/internal/services/otp"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrDuplicateEmail   = errors.New("user already exists with this email")
	ErrNotFound         = errors.New("user not found")
	ErrBadCredentials   = errors.New("invalid credentials")
	ErrInvalidOtp       = otp.ErrInvalid
	ErrExpiredOtp       = otp.ErrExpired
	ErrAlreadyVerified  = errors.New("user is already verified")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInternal         = errors.New("internal error")
	ErrNoToken          = fmt.Errorf("%w: no session token", ErrUnauthorized)
	ErrInvalidToken     = fmt.Errorf("%w: invalid session token", ErrUnauthorized)
	ErrExpiredToken     = fmt.Errorf("%w: session token expired", ErrUnauthorized)
	errUnknownChallenge = errors.New("unknown challenge purpose")
)

// MissingFieldError lists the required inputs that were empty.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + strings.Join(e.Fields, ", ")
}

// Is makes errors.Is(err, ErrMissingField) match.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// trimmedFields are blank when they hold only whitespace. Secrets and codes
// count as present whenever they are non-empty.
var trimmedFields = map[string]bool{"name": true, "email": true}

// requireFields takes name/value pairs and reports every missing value.
func requireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		if trimmedFields[name] {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// IsClientError reports whether err is part of the caller-facing taxonomy
// rather than an internal failure.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrMissingField, ErrInvalidEmail, ErrPasswordTooLong, ErrDuplicateEmail,
		ErrNotFound, ErrBadCredentials, ErrInvalidOtp, ErrExpiredOtp,
		ErrAlreadyVerified, ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
