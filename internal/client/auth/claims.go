package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the unverified claims of an access token. The signature is not
// checked: the backend remains the authority, the client only reads hints.
type Claims struct {
	raw jwt.MapClaims
}

// ClaimsFromToken decodes the payload of a JWT access token.
func ClaimsFromToken(access string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, mc); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	return &Claims{raw: mc}, nil
}

// Staff reports whether the token marks its holder as staff: a truthy
// is_staff or is_superuser, a staff/admin role, or a staff/admin group.
func (c *Claims) Staff() bool {
	if c == nil {
		return false
	}
	if truthy(c.raw["is_staff"]) || truthy(c.raw["is_superuser"]) {
		return true
	}
	if role, _ := c.raw["role"].(string); isStaffRole(role) {
		return true
	}
	groups, _ := c.raw["groups"].([]any)
	for _, g := range groups {
		if s, _ := g.(string); isStaffRole(s) {
			return true
		}
	}
	return false
}

// Expired reports whether exp lies before now. Tokens without exp never expire here.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	exp, err := c.raw.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case string:
		return t == "1" || t == "true"
	}
	return false
}
