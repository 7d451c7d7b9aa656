// Package policy decides which team roles may perform which membership actions.
package policy

import (
	"slices"

	"github.com/splax/teamhub/internal/domain"
)

// Role sets for membership actions.
var (
	// InviteRoles may add members and remove other members.
	InviteRoles = []domain.Role{domain.RoleOwner, domain.RoleManager}
	// DissolveRoles may dissolve a team.
	DissolveRoles = []domain.Role{domain.RoleOwner}
	// GrantableRoles may be handed out through an invitation.
	GrantableRoles = []domain.Role{domain.RoleManager, domain.RoleGuest}
)

// RoleOf returns the role userID holds in team.
func RoleOf(team *domain.Team, userID string) (domain.Role, bool) {
	if team == nil || userID == "" {
		return "", false
	}
	m, ok := team.Member(userID)
	if !ok {
		return "", false
	}
	return m.Role, true
}

// Authorize reports whether userID is a member of team holding one of roles.
// With no roles, any membership is enough.
func Authorize(team *domain.Team, userID string, roles ...domain.Role) bool {
	role, ok := RoleOf(team, userID)
	if !ok {
		return false
	}
	return len(roles) == 0 || slices.Contains(roles, role)
}

// Grantable reports whether role may be assigned through an invitation.
func Grantable(role domain.Role) bool {
	return slices.Contains(GrantableRoles, role)
}

// Strings renders roles for store filters.
func Strings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
