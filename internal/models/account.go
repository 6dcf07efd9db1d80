// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// Purpose names the flow a challenge slot belongs to.
type Purpose string

const (
	PurposeReset  Purpose = "reset"
	PurposeVerify Purpose = "verify"
	PurposeDelete Purpose = "delete"
)

// Challenge is an outstanding one-time passcode. The zero value is a cleared slot.
type Challenge struct {
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// IsZero reports whether no code is outstanding.
func (c Challenge) IsZero() bool {
	return c.Code == ""
}

// Account is a user record, unique by email.
type Account struct { //nolint:govet // fieldalignment not critical for models
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	IsVerified   bool      `json:"is_verified"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	ResetChallenge  Challenge `json:"-"`
	VerifyChallenge Challenge `json:"-"`
	DeleteChallenge Challenge `json:"-"`
}

// Challenge returns the slot for the given purpose, or nil for an unknown purpose.
func (a *Account) Challenge(p Purpose) *Challenge {
	switch p {
	case PurposeReset:
		return &a.ResetChallenge
	case PurposeVerify:
		return &a.VerifyChallenge
	case PurposeDelete:
		return &a.DeleteChallenge
	}
	return nil
}
