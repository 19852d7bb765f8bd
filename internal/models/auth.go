package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued access token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID            string       `json:"id"`
	InstitutionID string       `json:"institution_id"`
	Email         string       `json:"email"`
	FullName      string       `json:"full_name"`
	Role          UserRole     `json:"role"`
	Capabilities  []Capability `json:"capabilities"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID        string       `json:"user_id"`
	InstitutionID string       `json:"institution_id"`
	Role          UserRole     `json:"role"`
	Email         string       `json:"email"`
	FullName      string       `json:"full_name"`
	Capabilities  []Capability `json:"capabilities"`
	jwt.RegisteredClaims
}

// HasCapability reports whether the token grants capability.
func (c *JWTClaims) HasCapability(capability Capability) bool {
	if c == nil {
		return false
	}
	for _, granted := range c.Capabilities {
		if granted == capability {
			return true
		}
	}
	return false
}
