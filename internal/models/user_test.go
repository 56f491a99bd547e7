package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPasswordHashing(t *testing.T) {
	u := NewUser("ada", "ada@example.com")
	require.NoError(t, u.SetPassword("hunter22"))

	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.True(t, u.PasswordMatches("hunter22"))
	assert.False(t, u.PasswordMatches("hunter23"))
}

func TestUserRejectsEmptyPassword(t *testing.T) {
	u := NewUser("ada", "ada@example.com")
	assert.ErrorIs(t, u.SetPassword(""), ErrEmptyPassword)
	assert.False(t, u.PasswordMatches(""))
}

func TestNewUserNormalizes(t *testing.T) {
	u := NewUser("  ada ", " Ada@Example.COM ")
	assert.Equal(t, "ada", u.Username)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestPublicOmitsHash(t *testing.T) {
	u := NewUser("ada", "ada@example.com")
	require.NoError(t, u.SetPassword("hunter22"))

	pub := u.Public()
	assert.Empty(t, pub.PasswordHash)
	assert.NotEmpty(t, u.PasswordHash, "Public must not modify the receiver")

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), u.PasswordHash)
}
