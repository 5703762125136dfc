package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignParse(t *testing.T) {
	SetSecret("jwt-test")

	token, err := Sign("user-7", "seer@example.com", time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "seer@example.com", claims.Email)
}

func TestParseRejects(t *testing.T) {
	SetSecret("jwt-test")

	expired, err := Sign("user-7", "", -time.Hour)
	require.NoError(t, err)
	_, err = Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwtlib.ErrTokenExpired)

	SetSecret("other")
	foreign, err := Sign("user-7", "", time.Hour)
	require.NoError(t, err)
	SetSecret("jwt-test")
	_, err = Parse(foreign)
	assert.ErrorIs(t, err, jwtlib.ErrTokenSignatureInvalid)

	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "x"}).
		SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSubjectFallback(t *testing.T) {
	SetSecret("jwt-test")

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "from-sub",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("jwt-test"))
	require.NoError(t, err)
	claims, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "from-sub", claims.UserID)

	anon, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("jwt-test"))
	require.NoError(t, err)
	_, err = Parse(anon)
	assert.ErrorIs(t, err, ErrNoSubject)
}
