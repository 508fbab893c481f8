package jwtinfra_test

import (
	"testing"

	jwtinfra "github.com/go-verify-nosql/internal/infrastructure/jwt"
	"github.com/go-verify-nosql/internal/infrastructure/jwt/jwttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	p := jwttest.NewProvider(t)
	tok := jwttest.Token(t, p, "u1", "admin")

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerify_ForeignKeyRejected(t *testing.T) {
	a := jwttest.NewProvider(t)
	b := jwttest.NewProvider(t)
	_, err := b.Verify(jwttest.Token(t, a, "u1", "user"))
	assert.Error(t, err)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := jwttest.NewProvider(t).Verify("not.a.jwt")
	assert.Error(t, err)
}

func TestSign_WithoutPrivateKey(t *testing.T) {
	var p jwtinfra.Provider
	_, err := p.Sign("u1", "user")
	assert.ErrorContains(t, err, "signing key not configured")
}
