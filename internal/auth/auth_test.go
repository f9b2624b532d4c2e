package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	m, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, exp, err := m.IssueToken("ops-alpha")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-alpha", claims.OperatorID)
	assert.Equal(t, "yakkyoku", claims.Issuer)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	m1, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	m2, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := m1.IssueToken("ops-alpha")
	require.NoError(t, err)

	_, err = m2.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m, err := NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := m.IssueToken("ops-alpha")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = m.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := HashAPIKey("super-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret", hash)

	ok, err := VerifyAPIKey("super-secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashAPIKeySaltsDiffer(t *testing.T) {
	h1, err := HashAPIKey("same-key")
	require.NoError(t, err)
	h2, err := HashAPIKey("same-key")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyAPIKeyBadFormat(t *testing.T) {
	_, err := VerifyAPIKey("key", "not-a-valid-hash")
	assert.Error(t, err)
}
