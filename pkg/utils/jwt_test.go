package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop_backend/internal/pkg/config"
)

func useSecret(t *testing.T) {
	t.Helper()
	prev := config.GlobalConfig.JWT
	config.GlobalConfig.JWT.Secret = "test-secret-test-secret-test-secret"
	config.GlobalConfig.JWT.Expire = 1
	t.Cleanup(func() { config.GlobalConfig.JWT = prev })
}

func TestTokenRoundTrip(t *testing.T) {
	useSecret(t)

	token, exp, err := GenerateToken("user-1", 2)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *exp, 5*time.Second)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, 2, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestParseTokenRejects(t *testing.T) {
	useSecret(t)

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := GenerateToken("user-1", 1)
		require.NoError(t, err)
		config.GlobalConfig.JWT.Secret = "another-secret-another-secret-xx"
		_, err = ParseToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		useSecret(t)
		claims := Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.GlobalConfig.JWT.Secret))
		require.NoError(t, err)
		_, err = ParseToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("empty user", func(t *testing.T) {
		_, _, err := GenerateToken("", 1)
		assert.Error(t, err)
	})
}
