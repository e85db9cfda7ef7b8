package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})

	got, err := ExpiresAt(token)
	require.NoError(t, err)
	require.True(t, exp.Equal(got), "ExpiresAt() = %v, want %v", got, exp)
}

func TestExpiresAt_NoClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	_, err := ExpiresAt(token)
	require.ErrorIs(t, err, ErrNoExpiry)
}

func TestExpiresAt_Opaque(t *testing.T) {
	_, err := ExpiresAt("not-a-jwt")
	require.Error(t, err)
}

func TestCredentials_OAuth2Token(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	creds := Credentials{
		AccessToken:  signedToken(t, jwt.MapClaims{"exp": exp.Unix()}),
		RefreshToken: "refresh",
	}

	tok := creds.OAuth2Token()
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "refresh", tok.RefreshToken)
	require.True(t, exp.Equal(tok.Expiry))

	opaque := Credentials{AccessToken: "opaque"}.OAuth2Token()
	require.True(t, opaque.Expiry.IsZero())
	require.True(t, opaque.Valid())
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Credentials{AccessToken: "a", RefreshToken: "r"})

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", got.AccessToken)

	require.NoError(t, store.Save(ctx, Credentials{AccessToken: "b"}))
	got, _ = store.Load(ctx)
	require.Equal(t, Credentials{AccessToken: "b"}, got)

	require.NoError(t, store.Clear(ctx))
	got, _ = store.Load(ctx)
	require.True(t, got.Empty())
}
