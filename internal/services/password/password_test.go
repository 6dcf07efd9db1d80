// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package password_test

import (
	"strings"
	"testing"

	"codeberg.org/oliverandrich/authcore/internal/services/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHash_UsesCost10(t *testing.T) {
	h := password.NewHasher()

	hash, err := h.Hash("pw1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)
}

func TestHash_Salted(t *testing.T) {
	h := password.NewHasher()

	hash1, err := h.Hash("same-password")
	require.NoError(t, err)
	hash2, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
	assert.NotContains(t, hash1, "same-password")
}

func TestHash_TooLong(t *testing.T) {
	h := password.NewHasher()

	_, err := h.Hash(strings.Repeat("a", 73))

	assert.ErrorIs(t, err, password.ErrTooLong)
}

func TestVerify(t *testing.T) {
	h := password.NewHasher()
	hash, err := h.Hash("pw1")
	require.NoError(t, err)

	ok, err := h.Verify("pw1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("pw2", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.Verify("", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedHash(t *testing.T) {
	h := password.NewHasher()

	ok, err := h.Verify("pw1", "not-a-bcrypt-hash")

	assert.False(t, ok)
	assert.ErrorIs(t, err, password.ErrMalformedHash)
}
