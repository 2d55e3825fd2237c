package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamToken_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "legal-rag-api")
	tok, exp, err := m.GenerateStreamToken("req-1", "user-1", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := m.ParseStreamToken(tok, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestStreamToken_BoundToRequest(t *testing.T) {
	m := NewJWTManager("secret", "legal-rag-api")
	tok, _, err := m.GenerateStreamToken("req-1", "user-1", time.Minute)
	require.NoError(t, err)

	_, err = m.ParseStreamToken(tok, "req-2")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTManager("other", "legal-rag-api")
	_, err = other.ParseStreamToken(tok, "req-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStreamToken_Expired(t *testing.T) {
	m := NewJWTManager("secret", "")
	base := time.Now()
	m.now = func() time.Time { return base }
	tok, _, err := m.GenerateStreamToken("req-1", "user-1", time.Minute)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = m.ParseStreamToken(tok, "req-1")
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAccessToken_SubjectFallback(t *testing.T) {
	m := NewJWTManager("secret", "idp")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-9",
		Issuer:    "idp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := raw.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := m.ParseAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID)

	stream, _, err := NewJWTManager("secret", "elsewhere").GenerateStreamToken("r", "u", time.Minute)
	require.NoError(t, err)
	_, err = NewJWTManager("secret", "idp").ParseStreamToken(stream, "r")
	assert.ErrorIs(t, err, ErrInvalidToken, "issuer mismatch")
}
