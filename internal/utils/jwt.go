// Package utils issues the HS256 access tokens the API verifies.  The
// service has no login flow of its own; tokens come from the identity
// provider in production and from cmd/token in development and tests.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs a token for userID with role.  operatorID is added
// as the operator_id claim when non-empty and is required for OPERATOR
// tokens.
func NewAccessToken(secret string, userID uint64, role, operatorID string, ttl time.Duration) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("empty signing secret")
	}
	if role == "OPERATOR" && operatorID == "" {
		return AccessToken{}, errors.New("operator tokens need an operator id")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if operatorID != "" {
		claims["operator_id"] = operatorID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
