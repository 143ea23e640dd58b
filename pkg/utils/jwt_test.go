//go:build !integration

package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	SetJWTSecret("test-secret")

	token, err := GenerateJWT("42", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, 5*time.Second)
}

func TestParseJWT_Expired(t *testing.T) {
	SetJWTSecret("test-secret")

	token, err := GenerateJWT("42", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseJWT_WrongSecret(t *testing.T) {
	SetJWTSecret("one")
	token, err := GenerateJWT("42", "admin", time.Hour)
	require.NoError(t, err)

	SetJWTSecret("two")
	_, err = ParseJWT(token)
	assert.Error(t, err)
}

func TestGenerateJWT_NoSecret(t *testing.T) {
	SetJWTSecret("")
	_, err := GenerateJWT("42", "admin", time.Hour)
	assert.Error(t, err)
}
