// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp generates and checks six-digit one-time passcodes.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/models"
)

const (
	// Validity is how long an issued code can be redeemed.
	Validity = 10 * time.Minute

	minCode = 100000
	maxCode = 999999
)

var (
	ErrInvalid = errors.New("invalid otp")
	ErrExpired = errors.New("otp has expired")
)

// Generator draws codes uniformly from 100000..999999.
type Generator struct {
	rand io.Reader
}

// NewGenerator creates a generator reading from r, or crypto/rand when r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// Generate returns a new six-digit code.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.rand, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}

// ExpiryFrom returns the expiry of a code issued at now.
func ExpiryFrom(now time.Time) time.Time {
	return now.Add(Validity)
}

// NewChallenge builds a challenge for code issued at now.
func NewChallenge(code string, now time.Time) models.Challenge {
	return models.Challenge{Code: code, ExpiresAt: ExpiryFrom(now)}
}

// Verify checks code against the challenge. A cleared slot or a different code is
// ErrInvalid; a matching code whose expiry is not strictly after now is ErrExpired.
func Verify(ch models.Challenge, code string, now time.Time) error {
	if ch.IsZero() || code == "" {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		return ErrInvalid
	}
	if !ch.ExpiresAt.After(now) {
		return ErrExpired
	}
	return nil
}
