package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "infinitune", utils.NewNopLogger())
	token := signToken(t, jwt.RegisteredClaims{
		Issuer:    "infinitune",
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, testSecret)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Empty(t, identity.DeviceID)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", utils.NewNopLogger())
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, testSecret)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", utils.NewNopLogger())
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, "other-secret")

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	v := NewJWTVerifier(testSecret, "infinitune", utils.NewNopLogger())
	token := signToken(t, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, testSecret)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", utils.NewNopLogger())
	token := signToken(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, testSecret)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

type fakeDeviceLookup struct {
	devices map[string]*models.StoredDevice
}

func (f *fakeDeviceLookup) FindByID(_ context.Context, id string) (*models.StoredDevice, error) {
	return f.devices[id], nil
}

func TestDeviceVerify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	lookup := &fakeDeviceLookup{devices: map[string]*models.StoredDevice{
		"dev-1": {ID: "dev-1", Name: "Kitchen", TokenHash: string(hash)},
	}}
	v := NewDeviceVerifier(lookup, utils.NewNopLogger())

	identity, err := v.Verify(context.Background(), "dev-1.s3cret")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", identity.DeviceID)

	_, err = v.Verify(context.Background(), "dev-1.wrong")
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)

	_, err = v.Verify(context.Background(), "unknown.s3cret")
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)

	_, err = v.Verify(context.Background(), "malformed")
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)
}
