package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline-backend/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "test-secret-test-secret", Issuer: "stockline-test", ExpirationMinutes: 60}

func TestMintAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	now := time.Now().Truncate(time.Second)
	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Username: "wanda"})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "wanda", claims.Username)
	assert.Equal(t, "stockline-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestMintRequiresIdentity(t *testing.T) {
	t.Parallel()

	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Username: "no-id"})
	require.Error(t, err)

	broken := testCfg
	broken.Secret = ""
	_, err = MintAccessToken(broken, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	require.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Username: "wanda"})
	require.NoError(t, err)

	other := testCfg
	other.Secret = "a-different-secret-entirely"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	minted := testCfg
	minted.Issuer = "someone-else"
	token, err := MintAccessToken(minted, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token)
	require.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	token, err := MintAccessToken(testCfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token)
	require.Error(t, err)
}
