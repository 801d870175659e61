package auth

import (
	"strings"

	"github.com/vimarsh/guidance/internal/domain"
)

// roleLevel orders roles for RequireMinRole comparisons, generalized from
// the teacher's four-level roleLevel map down to this system's three roles.
var roleLevel = map[domain.Role]int{
	domain.RoleSuperAdmin: 30,
	domain.RoleAdmin:      20,
	domain.RoleUser:       10,
}

var rolePermissions = map[domain.Role][]domain.Permission{
	domain.RoleUser: {
		domain.PermissionAskGuidance,
		domain.PermissionViewOwnUsage,
	},
	domain.RoleAdmin: {
		domain.PermissionAskGuidance,
		domain.PermissionViewOwnUsage,
		domain.PermissionViewAllUsage,
		domain.PermissionManageBudget,
		domain.PermissionClearBlocks,
	},
	domain.RoleSuperAdmin: {
		domain.PermissionAskGuidance,
		domain.PermissionViewOwnUsage,
		domain.PermissionViewAllUsage,
		domain.PermissionManageBudget,
		domain.PermissionClearBlocks,
		domain.PermissionManageRoles,
	},
}

// RoleManager derives a user's role and permission bundle from the
// super-admin and admin email allow-lists loaded at startup. Mutations are
// in-memory only; persisting a changed allow-list is delegated to a Config
// reload and restart.
type RoleManager struct {
	admin      map[string]struct{}
	superAdmin map[string]struct{}
}

// NewRoleManager builds a RoleManager from comma-separated, case-insensitive
// email allow-lists.
func NewRoleManager(adminEmails, superAdminEmails []string) *RoleManager {
	rm := &RoleManager{
		admin:      make(map[string]struct{}, len(adminEmails)),
		superAdmin: make(map[string]struct{}, len(superAdminEmails)),
	}
	for _, e := range adminEmails {
		rm.admin[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, e := range superAdminEmails {
		rm.superAdmin[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return rm
}

// Role returns the derived role for an email address.
func (rm *RoleManager) Role(email string) domain.Role {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := rm.superAdmin[key]; ok {
		return domain.RoleSuperAdmin
	}
	if _, ok := rm.admin[key]; ok {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// Permissions returns the fixed permission bundle for a role.
func (rm *RoleManager) Permissions(role domain.Role) []domain.Permission {
	return rolePermissions[role]
}

// PromoteAdmin grants admin to an email for the remainder of this process's
// lifetime. Callers must gate this to super-admin identities themselves.
func (rm *RoleManager) PromoteAdmin(email string) {
	rm.admin[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
}

// DemoteAdmin revokes an in-memory admin grant. Emails loaded from Config at
// startup are restored on the next restart.
func (rm *RoleManager) DemoteAdmin(email string) {
	delete(rm.admin, strings.ToLower(strings.TrimSpace(email)))
}

// HasMinRole reports whether role meets or exceeds min in the
// super_admin > admin > user ordering.
func HasMinRole(role, min domain.Role) bool {
	return roleLevel[role] >= roleLevel[min]
}
