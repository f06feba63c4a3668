package middleware

import (
	"testing"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func testAuthConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpireHours: 1,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testAuthConfig()
	user := &models.User{
		ID:       42,
		Username: "alice",
		Role:     models.RoleMember,
		Plan:     models.PlanPro,
	}

	token, err := GenerateToken(user, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, cfg)
	require.NoError(t, err)
	require.Equal(t, uint(42), claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, models.RoleMember, claims.Role)
	require.Equal(t, models.PlanPro, claims.Plan)
	require.Equal(t, "clipdigest", claims.Issuer)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestParseTokenWrongSecret(t *testing.T) {
	user := &models.User{ID: 1, Username: "alice"}

	token, err := GenerateToken(user, testAuthConfig())
	require.NoError(t, err)

	_, err = ParseToken(token, &config.Config{JWTSecret: "other-secret"})
	require.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testAuthConfig())
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpireHours: -1}
	user := &models.User{ID: 1, Username: "alice"}

	token, err := GenerateToken(user, cfg)
	require.NoError(t, err)

	_, err = ParseToken(token, cfg)
	require.Error(t, err)
}
