package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenSuccess(t *testing.T) {
	v := NewVerifier("secret")

	token := signToken(t, "secret", "42", time.Now().Add(time.Hour))
	userID, err := v.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, 42, userID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	v := NewVerifier("secret")

	token := signToken(t, "other-secret", "42", time.Now().Add(time.Hour))
	_, err := v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	v := NewVerifier("secret")

	token := signToken(t, "secret", "42", time.Now().Add(-time.Minute))
	_, err := v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenNonNumericSubject(t *testing.T) {
	v := NewVerifier("secret")

	token := signToken(t, "secret", "alice", time.Now().Add(time.Hour))
	_, err := v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	v := NewVerifier("secret")

	_, err := v.ValidateToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
