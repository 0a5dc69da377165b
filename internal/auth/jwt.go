package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/attendance"
)

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// legacyRoles maps the single-letter role codes of older tokens.
var legacyRoles = map[string]attendance.Role{
	"A": attendance.RoleFaculty,
	"U": attendance.RoleRepresentative,
	"C": attendance.RoleClassRepresentative,
}

// RoleOf resolves a claim role to a known role.
func RoleOf(claim string) (attendance.Role, bool) {
	if r, ok := legacyRoles[strings.ToUpper(claim)]; ok && len(claim) == 1 {
		return r, true
	}
	switch r := attendance.Role(strings.ToLower(claim)); r {
	case attendance.RoleFaculty, attendance.RoleRepresentative, attendance.RoleClassRepresentative:
		return r, true
	}
	return "", false
}

// Caller turns verified claims into the caller identity.
func (c Claims) Caller() (attendance.Caller, error) {
	id := c.Subject
	if id == "" {
		id = c.RegisteredClaims.Subject
	}
	if id == "" {
		return attendance.Caller{}, errors.New("token has no subject")
	}
	role, ok := RoleOf(c.Role)
	if !ok {
		return attendance.Caller{}, errors.New("token has an unknown role")
	}
	return attendance.Caller{ID: id, Role: role}, nil
}
