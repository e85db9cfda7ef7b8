package tokenstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoExpiry is returned when a token carries no readable exp claim.
var ErrNoExpiry = errors.New("token has no exp claim")

// ExpiresAt reads the exp claim of a JWT access token without verifying its signature.
// The client never holds the signing key; the server remains the authority on validity.
func ExpiresAt(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// OAuth2Token converts the pair for golang.org/x/oauth2 consumers. Expiry is left zero
// (never expires) for opaque tokens.
func (c Credentials) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	if exp, err := ExpiresAt(c.AccessToken); err == nil {
		tok.Expiry = exp
	}
	return tok
}
