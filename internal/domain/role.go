package domain

import (
	"fmt"
	"strings"
)

// Role is a member's standing within one team.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleGuest   Role = "guest"
)

// ParseRole accepts owner, manager or guest in any letter case.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleGuest:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
