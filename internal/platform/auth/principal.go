package auth

import (
	"context"
	"fmt"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

// Role is the access level of a clinic login.
type Role string

const (
	RoleDoctor    Role = "doctor"
	RoleAssistant Role = "assistant"
	RolePatient   Role = "patient"
)

// StaffRoles are the roles allowed to create, edit and delete records.
var StaffRoles = []Role{RoleDoctor, RoleAssistant}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleDoctor, RoleAssistant, RolePatient:
		return r, nil
	default:
		return "", apperr.Validation("unknown role %q", s)
	}
}

// Principal identifies the caller of a core operation. It is passed
// explicitly to every service method.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.Username, p.Role)
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

func (p Principal) IsStaff() bool {
	return p.HasRole(StaffRoles...)
}

// Require returns Unauthorized for an anonymous principal and Forbidden
// when the role is not in roles.
func Require(p Principal, roles ...Role) error {
	if p.Role == "" {
		return apperr.Unauthorized("authentication required")
	}
	if !p.HasRole(roles...) {
		return apperr.Forbidden(fmt.Sprintf("role %s may not perform this action", p.Role))
	}
	return nil
}

// RequireStaff is Require with the doctor and assistant roles.
func RequireStaff(p Principal) error {
	return Require(p, StaffRoles...)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
