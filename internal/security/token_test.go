package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fotoreg/api/internal/models"
)

const testSecret = "test-secret"

func testUser() models.User {
	return models.User{
		ID:       "user-1",
		Username: "operator1",
		Role:     models.UserRoleOperator,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := IssueAccessToken(testSecret, testUser(), time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "operator1", claims.Username)
	assert.Equal(t, "operator", claims.Role)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := IssueAccessToken(testSecret, testUser(), time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := IssueAccessToken(testSecret, testUser(), -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenGarbage(t *testing.T) {
	_, err := ParseAccessToken("not-a-token", testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ParseAccessToken("", testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, err := IssueRefreshToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := ParseRefreshToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestRefreshTokenExpired(t *testing.T) {
	token, err := IssueRefreshToken(testSecret, "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = ParseRefreshToken(token, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
