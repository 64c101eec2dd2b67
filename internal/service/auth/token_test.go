package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/models"
)

func TestTokenManager(t *testing.T) {
	t.Parallel()

	m := tokenManager{
		key:       "test-secret",
		alg:       jwt.GetSigningMethod("HS256"),
		accessTTL: time.Minute,
	}

	user := models.User{ID: uuid.New(), Username: "duong", IsAdmin: true}

	t.Run("issue and parse round trip", func(t *testing.T) {
		token, err := m.Issue(user)
		require.NoError(t, err)

		claims, err := m.Parse(token.Value)

		require.NoError(t, err)
		require.Equal(t, user.ID, claims.UserID)
		require.True(t, claims.IsAdmin)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		short := tokenManager{key: m.key, alg: m.alg, accessTTL: -time.Minute}

		token, err := short.Issue(user)
		require.NoError(t, err)

		_, err = m.Parse(token.Value)
		require.Error(t, err)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		token, err := m.Issue(user)
		require.NoError(t, err)

		other := tokenManager{key: "another-secret", alg: m.alg, accessTTL: time.Minute}

		_, err = other.Parse(token.Value)
		require.Error(t, err)
	})

	t.Run("alg confusion rejected", func(t *testing.T) {
		// Token signed with "none" must not pass even with a valid payload
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			UserID: user.ID,
		})
		value, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Parse(value)
		require.Error(t, err)
	})
}
