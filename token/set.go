package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TypeBearer is the only token type the identity endpoints issue.
const TypeBearer = "Bearer"

// ErrInvalidSet is returned when a token response is missing required fields.
var ErrInvalidSet = errors.New("invalid token set")

// Set is the token response of the /identity/login and /identity/refresh endpoints.
// A Set is replaced wholesale on login or refresh, never edited in place.
type Set struct {
	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// AccessToken is sent as "Authorization: Bearer <access_token>" on each authorized call.
	AccessToken string `json:"accessToken"`

	// ExpiresIn is the access token lifetime in seconds, relative to the response's Date.
	ExpiresIn int64 `json:"expiresIn"`

	// RefreshToken is exchanged at /identity/refresh for a new Set.
	RefreshToken string `json:"refreshToken"`
}

// Decode reads a Set from a response body. An empty or unusable body is an error.
func Decode(r io.Reader) (*Set, error) {
	var s Set
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("[token.Decode] %w: %v", ErrInvalidSet, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the required fields and defaults the token type.
func (s *Set) Validate() error {
	if strings.TrimSpace(s.AccessToken) == "" {
		return fmt.Errorf("%w: missing access token", ErrInvalidSet)
	}
	if strings.TrimSpace(s.RefreshToken) == "" {
		return fmt.Errorf("%w: missing refresh token", ErrInvalidSet)
	}
	if s.ExpiresIn < 0 {
		return fmt.Errorf("%w: negative expiresIn", ErrInvalidSet)
	}
	if s.TokenType == "" {
		s.TokenType = TypeBearer
	}
	return nil
}

// ExpiresAt is the absolute expiry given the server's response time.
func (s Set) ExpiresAt(serverDate time.Time) time.Time {
	return serverDate.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// OAuth2Token adapts the set to an oauth2.Token so it can be attached with SetAuthHeader.
func (s Set) OAuth2Token(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    TypeBearer,
		RefreshToken: s.RefreshToken,
		Expiry:       expiry,
	}
}

// Subject peeks at the "sub" claim when the access token is a JWT. The signature is not
// verified; the value is for display only.
func (s Set) Subject() (string, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
