package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token cannot be decoded.
var ErrInvalidToken = errors.New("auth: invalid token")

// Payload holds the claims the Scout login endpoint signs into its JWT.
type Payload struct {
	ID        string           `json:"id"`
	FirstName string           `json:"fname"`
	Email     string           `json:"email"`
	Token     string           `json:"token"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
}

var _ jwt.Claims = (*Payload)(nil)

func (p *Payload) GetExpirationTime() (*jwt.NumericDate, error) { return p.ExpiresAt, nil }
func (p *Payload) GetIssuedAt() (*jwt.NumericDate, error)       { return p.IssuedAt, nil }
func (p *Payload) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (p *Payload) GetIssuer() (string, error)                   { return "", nil }
func (p *Payload) GetSubject() (string, error)                  { return p.ID, nil }
func (p *Payload) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// Decode parses the claims of tokenString without verifying its signature.
// The login endpoint that issued the token is trusted; the SDK never holds its key.
func Decode(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	var p Payload
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &p, nil
}
