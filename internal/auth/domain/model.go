// Package domain contains core types for bearer token authentication.
package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token body issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller. Subject is the stable identity-provider id.
type Identity struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}
