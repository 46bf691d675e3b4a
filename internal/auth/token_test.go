package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestUserIDClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"string sub", jwt.MapClaims{"sub": "user-1"}, "user-1"},
		{"numeric sub", jwt.MapClaims{"sub": float64(42)}, "42"},
		{"userId claim", jwt.MapClaims{"userId": "u-9"}, "u-9"},
		{"long name identifier", jwt.MapClaims{"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier": "abc"}, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UserID(sign(t, tt.claims, "other-secret"), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserIDVerifiesWhenSecretSet(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"sub": "user-1"}, "s3cret")

	got, err := UserID("Bearer "+tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got)

	_, err = UserID(tok, "wrong")
	assert.Error(t, err)
}

func TestUserIDErrors(t *testing.T) {
	_, err := UserID("", "")
	assert.Error(t, err)

	_, err = UserID("not.a.jwt", "")
	assert.Error(t, err)

	_, err = UserID(sign(t, jwt.MapClaims{"role": "patient"}, "x"), "")
	assert.ErrorIs(t, err, ErrNoUserID)
}
