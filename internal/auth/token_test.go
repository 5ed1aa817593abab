package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

func testClaims() SessionClaims {
	claims := SessionClaims{
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Roles:     []string{"user", "dashboard-admin"},
		UserID:    "8f1c2a34-aaaa-bbbb-cccc-000000000001",
	}
	claims.Subject = "jdoe"
	return claims
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 30*time.Minute)

	token, err := issuer.Issue(testClaims())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := issuer.Verify(token)
	require.NoError(t, err)

	want := testClaims()
	assert.Equal(t, want.Username, got.Username)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.FirstName, got.FirstName)
	assert.Equal(t, want.LastName, got.LastName)
	assert.Equal(t, want.Roles, got.Roles)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Subject, got.Subject)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.After(time.Now()))
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Second)

	token, err := issuer.Issue(testClaims())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTamperedSignature(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	token, err := issuer.Issue(testClaims())
	require.NoError(t, err)

	// Flip one character in the signature segment.
	tampered := []byte(token)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = issuer.Verify(string(tampered))
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := issuer.Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", token)
	}
}

func TestVerifyMissingExpiry(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	// Sign claims directly without the expiry Issue stamps on.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims()).SignedString(testSecret)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)
	other := NewTokenIssuer([]byte("a-different-secret"), time.Minute)

	token, err := issuer.Issue(testClaims())
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestZeroTTLDefaults(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 0)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())
}
