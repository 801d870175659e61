package auth

import (
	"context"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
)

func TestRoleManagerDerivesRoleFromAllowLists(t *testing.T) {
	rm := NewRoleManager([]string{"Admin@Example.com"}, []string{"root@example.com"})

	cases := []struct {
		email string
		want  domain.Role
	}{
		{"admin@example.com", domain.RoleAdmin},
		{"root@example.com", domain.RoleSuperAdmin},
		{"nobody@example.com", domain.RoleUser},
	}
	for _, c := range cases {
		if got := rm.Role(c.email); got != c.want {
			t.Errorf("Role(%q) = %q, want %q", c.email, got, c.want)
		}
	}
}

func TestRoleManagerPermissionsEscalateWithRole(t *testing.T) {
	rm := NewRoleManager(nil, nil)

	userPerms := rm.Permissions(domain.RoleUser)
	superPerms := rm.Permissions(domain.RoleSuperAdmin)
	if len(superPerms) <= len(userPerms) {
		t.Errorf("expected super_admin to hold strictly more permissions than user, got %d vs %d", len(superPerms), len(userPerms))
	}

	var hasManageRoles bool
	for _, p := range superPerms {
		if p == domain.PermissionManageRoles {
			hasManageRoles = true
		}
	}
	if !hasManageRoles {
		t.Error("expected super_admin to hold roles:manage")
	}
}

func TestHasMinRoleOrdering(t *testing.T) {
	if !HasMinRole(domain.RoleSuperAdmin, domain.RoleAdmin) {
		t.Error("super_admin should satisfy RequireMinRole(admin)")
	}
	if HasMinRole(domain.RoleUser, domain.RoleAdmin) {
		t.Error("user should not satisfy RequireMinRole(admin)")
	}
}

func TestAuthServiceDevModeFixedTokens(t *testing.T) {
	rm := NewRoleManager([]string{"admin@vimarsh.local"}, nil)
	svc := NewAuthService(ModeDevelopment, "https://issuer.example.com", "client-id", rm)

	user, err := svc.Authenticate(context.Background(), "Bearer admin-token")
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Errorf("admin-token should map to admin role, got %q", user.Role)
	}

	user, err = svc.Authenticate(context.Background(), "Bearer dev-token")
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if user.Role != domain.RoleUser {
		t.Errorf("dev-token should map to user role, got %q", user.Role)
	}
}

func TestAuthServiceRejectsEmptyBearer(t *testing.T) {
	rm := NewRoleManager(nil, nil)
	svc := NewAuthService(ModeDevelopment, "https://issuer.example.com", "client-id", rm)

	if _, err := svc.Authenticate(context.Background(), ""); err != domain.ErrNoToken {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestAuthServiceAudienceAcceptedTolerance(t *testing.T) {
	rm := NewRoleManager(nil, nil)
	svc := NewAuthService(ModeProduction, "https://login.microsoftonline.com/tenant/v2.0", "my-client-id", rm)

	cases := []struct {
		name string
		aud  audience
		want bool
	}{
		{"client id", audience{"my-client-id"}, true},
		{"api prefix", audience{"api://my-client-id"}, true},
		{"graph service principal", audience{"00000003-0000-0000-c000-000000000000"}, true},
		{"unrelated", audience{"someone-elses-app"}, false},
	}
	for _, c := range cases {
		if got := svc.audienceAccepted(c.aud); got != c.want {
			t.Errorf("%s: audienceAccepted() = %v, want %v", c.name, got, c.want)
		}
	}
}
