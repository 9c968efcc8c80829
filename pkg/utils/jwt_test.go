package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "novel-orchestrator")
	tok, err := m.GenerateToken("gateway", "generate", "workflow", time.Minute)
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "gateway", claims.ClientID)
	assert.Equal(t, "generate", claims.Scope)
	assert.Equal(t, "novel-orchestrator", claims.Issuer)
}

func TestJWTRejectsWrongSecretAndExpiry(t *testing.T) {
	tok, err := NewJWTManager("a", "x").GenerateToken("c", "", "", time.Minute)
	require.NoError(t, err)
	_, err = NewJWTManager("b", "x").ParseToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTManager("a", "x").GenerateToken("c", "", "", -time.Minute)
	require.NoError(t, err)
	_, err = NewJWTManager("a", "x").ParseToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTRejectsForeignIssuer(t *testing.T) {
	tok, err := NewJWTManager("k", "someone-else").GenerateToken("c", "", "", time.Minute)
	require.NoError(t, err)
	_, err = NewJWTManager("k", "novel-orchestrator").ParseToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := NewJWTManager("k", "").ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", claims.Issuer)
}

func TestClaimsHasScope(t *testing.T) {
	c := &Claims{Scope: "generate  evaluate"}
	assert.True(t, c.HasScope("evaluate"))
	assert.False(t, c.HasScope("admin"))
}
