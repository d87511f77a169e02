package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDisabledValidatorAcceptsEverything(t *testing.T) {
	v := New(Config{})
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(Credential{}))
}

func TestStaticBearerToken(t *testing.T) {
	v := New(Config{StaticToken: "s3cr3t"})
	assert.NoError(t, v.Verify(Credential{BearerToken: "s3cr3t"}))

	err := v.Verify(Credential{BearerToken: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestAPIKey(t *testing.T) {
	v := New(Config{StaticToken: "key-value"})
	assert.NoError(t, v.Verify(Credential{APIKey: "key-value"}))
	assert.Error(t, v.Verify(Credential{APIKey: "nope"}))
}

func TestBasicAuthCleartext(t *testing.T) {
	v := New(Config{Username: "admin", Password: "hunter2"})
	assert.NoError(t, v.Verify(Credential{Username: "admin", Password: "hunter2"}))
	assert.Error(t, v.Verify(Credential{Username: "admin", Password: "wrong"}))
}

func TestBasicAuthBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)

	v := New(Config{Username: "admin", PasswordHash: string(hash)})
	assert.NoError(t, v.Verify(Credential{Username: "admin", Password: "hunter2"}))
	assert.Error(t, v.Verify(Credential{Username: "admin", Password: "wrong"}))
}

func TestJWTBearerToken(t *testing.T) {
	secret := "jwt-signing-secret"
	v := New(Config{JWTSecret: secret})

	claims := jwt.MapClaims{"sub": "tester", "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := IssueJWT(secret, claims)
	require.NoError(t, err)

	assert.NoError(t, v.Verify(Credential{BearerToken: tok}))
	assert.Error(t, v.Verify(Credential{BearerToken: "garbage"}))
}

func TestExemptPaths(t *testing.T) {
	v := New(Config{StaticToken: "x", ExemptPaths: []string{"/"}})
	assert.True(t, v.IsExempt("/health"))
	assert.True(t, v.IsExempt("/metrics"))
	assert.True(t, v.IsExempt("/"))
	assert.False(t, v.IsExempt("/query"))
}
