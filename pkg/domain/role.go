package domain

import dErrors "kycreview/pkg/domain-errors"

// Role is the caller's role as resolved by the identity provider.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries (token claims); direct
// casting bypasses validation.
type Role string

const (
	RoleBranch     Role = "branch"
	RoleOfficer    Role = "officer"
	RoleSupervisor Role = "supervisor"
)

var validRoles = map[Role]bool{
	RoleBranch:     true,
	RoleOfficer:    true,
	RoleSupervisor: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeUnauthorized when the value is empty or unsupported, since
// a token without a known role cannot be acted on.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "unsupported role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
