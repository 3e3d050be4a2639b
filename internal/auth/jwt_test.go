package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hstudio-dev/glasschat/internal/models"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(models.RoleUser, "code-1", "", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "code-1", claims.ConversationID)
	assert.Equal(t, "glasschat", claims.Issuer)
}

func TestAdminTokenCarriesEmailNotConversation(t *testing.T) {
	token, err := GenerateToken(models.RoleAdmin, "", "ops@example.com", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Empty(t, claims.ConversationID)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(models.RoleUser, "code-1", "", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "some-other-secret")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken(models.RoleUser, "code-1", "", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}
