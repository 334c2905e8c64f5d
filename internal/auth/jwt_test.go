package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/location-service/internal/room"
)

const testSecret = "test-secret"

func signHS(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "user-1",
		"role": 1,
		"iss":  "transit-users",
		"aud":  "location-service",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func TestHS256Validate(t *testing.T) {
	v, err := NewJWTValidatorHS256(testSecret, "transit-users", "location-service", "")
	require.NoError(t, err)

	id, err := v.Validate(signHS(t, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, Identity{Subject: "user-1", Role: room.RoleDriver}, id)

	c := baseClaims()
	c["role"] = "passenger"
	delete(c, "sub")
	c["user_id"] = "user-2"
	id, err = v.Validate(signHS(t, c))
	require.NoError(t, err)
	assert.Equal(t, Identity{Subject: "user-2", Role: room.RolePassenger}, id)
}

func TestHS256Rejects(t *testing.T) {
	v, err := NewJWTValidatorHS256(testSecret, "transit-users", "location-service", "role")
	require.NoError(t, err)

	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIss := baseClaims()
	wrongIss["iss"] = "someone-else"
	wrongAud := baseClaims()
	wrongAud["aud"] = "other"
	noExp := baseClaims()
	delete(noExp, "exp")
	noSub := baseClaims()
	delete(noSub, "sub")

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims()).SignedString([]byte("nope"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":   signHS(t, expired),
		"issuer":    signHS(t, wrongIss),
		"audience":  signHS(t, wrongAud),
		"no exp":    signHS(t, noExp),
		"no sub":    signHS(t, noSub),
		"signature": otherKey,
		"garbage":   "not.a.token",
	} {
		_, err := v.Validate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = v.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestHS256RequiresSecret(t *testing.T) {
	_, err := NewJWTValidatorHS256("", "", "", "")
	assert.Error(t, err)
}

func TestUnknownRoleIsAccepted(t *testing.T) {
	v, err := NewJWTValidatorHS256(testSecret, "", "", "")
	require.NoError(t, err)
	c := baseClaims()
	c["role"] = "admin"
	id, err := v.Validate(signHS(t, c))
	require.NoError(t, err)
	assert.Equal(t, room.RoleUnknown, id.Role)
}

func TestRS256Validate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewJWTValidatorRS256(path, "", "", "role")
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims()).SignedString(key)
	require.NoError(t, err)
	id, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, room.RoleDriver, id.Role)

	// HS256 token must not pass an RS256 validator
	_, err = v.Validate(signHS(t, baseClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRS256BadKeyFile(t *testing.T) {
	_, err := NewJWTValidatorRS256(filepath.Join(t.TempDir(), "missing.pem"), "", "", "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	_, err = NewJWTValidatorRS256(path, "", "", "")
	assert.Error(t, err)
}
