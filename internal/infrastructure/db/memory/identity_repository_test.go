package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/docqa/docqa-api/internal/core/domain"
)

func roleID(t *testing.T, r *IdentityRepository, name string) int64 {
	t.Helper()
	roles, _ := r.ListRoles(context.Background())
	for _, role := range roles {
		if role.Name == name {
			return role.ID
		}
	}
	t.Fatalf("role %s not found", name)
	return 0
}

func newAdmin(t *testing.T, r *IdentityRepository, email string) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, err := r.CreateUser(ctx, &domain.User{Email: email, PasswordHash: "x", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := r.SetAdmin(ctx, u.ID, true); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := r.AssignRole(ctx, u.ID, roleID(t, r, domain.RoleAdmin)); err != nil {
		t.Fatalf("assign admin: %v", err)
	}
	return u
}

func TestIdentityRepository_SeedsBuiltinRoles(t *testing.T) {
	r := NewIdentityRepository()
	roles, _ := r.ListRoles(context.Background())
	if len(roles) != 2 || roles[0].Name != domain.RoleAdmin || roles[1].Name != domain.RoleUser {
		t.Fatalf("unexpected built-in roles: %+v", roles)
	}
	if err := r.EnsureBuiltinRoles(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	roles, _ = r.ListRoles(context.Background())
	if len(roles) != 2 {
		t.Fatalf("ensure must be idempotent, got %d roles", len(roles))
	}
}

func TestIdentityRepository_DuplicateEmailIsNormalized(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()

	if _, err := r.CreateUser(ctx, &domain.User{Email: "Alice@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CreateUser(ctx, &domain.User{Email: " alice@example.com"}); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := r.UserByEmail(ctx, "ALICE@example.com"); err != nil {
		t.Fatalf("lookup should be case-insensitive: %v", err)
	}
}

func TestIdentityRepository_AssignIsIdempotent(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, &domain.User{Email: "c@example.com"})
	editor, _ := r.CreateRole(ctx, "editor")

	for i := 0; i < 2; i++ {
		if err := r.AssignRole(ctx, u.ID, editor.ID); err != nil {
			t.Fatalf("assign #%d: %v", i, err)
		}
	}
	got, _ := r.UserByID(ctx, u.ID)
	if len(got.Roles) != 1 || got.Roles[0].Name != "editor" {
		t.Fatalf("expected exactly one editor membership, got %+v", got.Roles)
	}

	if err := r.AssignRole(ctx, 999, editor.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := r.AssignRole(ctx, u.ID, 999); !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestIdentityRepository_LastAdminGuard(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()
	adminRole := roleID(t, r, domain.RoleAdmin)
	a := newAdmin(t, r, "a@example.com")

	if err := r.RemoveRole(ctx, a.ID, adminRole); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	got, _ := r.UserByID(ctx, a.ID)
	if !got.HasRole(domain.RoleAdmin) {
		t.Fatalf("admin role must remain assigned")
	}
	if _, err := r.SetAdmin(ctx, a.ID, false); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on flag clear, got %v", err)
	}
	if err := r.DeleteUser(ctx, a.ID); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on delete, got %v", err)
	}

	b := newAdmin(t, r, "b@example.com")
	if err := r.RemoveRole(ctx, a.ID, adminRole); err != nil {
		t.Fatalf("removal with a second admin present: %v", err)
	}
	if err := r.RemoveRole(ctx, b.ID, adminRole); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin for b, got %v", err)
	}
}

func TestIdentityRepository_RemoveRoleNotHeldIsNoop(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, &domain.User{Email: "d@example.com", IsAdmin: true})

	if err := r.RemoveRole(ctx, u.ID, roleID(t, r, domain.RoleAdmin)); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestIdentityRepository_ConcurrentAdminRemoval(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := NewIdentityRepository()
		ctx := context.Background()
		adminRole := roleID(t, r, domain.RoleAdmin)
		a := newAdmin(t, r, "a@example.com")
		b := newAdmin(t, r, "b@example.com")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, id := range []int64{a.ID, b.ID} {
			wg.Add(1)
			go func(j int, id int64) {
				defer wg.Done()
				errs[j] = r.RemoveRole(ctx, id, adminRole)
			}(j, id)
		}
		wg.Wait()

		ok, violations := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrLastAdmin):
				violations++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || violations != 1 {
			t.Fatalf("iteration %d: expected one success and one violation, got %v", i, errs)
		}
		if n := r.countAdmins(); n != 1 {
			t.Fatalf("iteration %d: expected one remaining admin, got %d", i, n)
		}
	}
}

func TestIdentityRepository_DeleteRoleDropsMemberships(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, &domain.User{Email: "e@example.com"})
	editor, _ := r.CreateRole(ctx, "editor")
	_ = r.AssignRole(ctx, u.ID, editor.ID)

	if err := r.DeleteRole(ctx, editor.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	got, _ := r.UserByID(ctx, u.ID)
	if len(got.Roles) != 0 {
		t.Fatalf("expected memberships to be dropped, got %+v", got.Roles)
	}
	if err := r.DeleteRole(ctx, roleID(t, r, domain.RoleUser)); !errors.Is(err, domain.ErrBuiltinRole) {
		t.Fatalf("expected ErrBuiltinRole, got %v", err)
	}
}

func TestIdentityRepository_PermissionsTravelWithSnapshot(t *testing.T) {
	r := NewIdentityRepository()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, &domain.User{Email: "f@example.com"})
	editor, _ := r.CreateRole(ctx, "editor")
	_ = r.AssignRole(ctx, u.ID, editor.ID)

	perm := domain.Permission{Action: "write", ResourceType: "Document"}
	if _, err := r.GrantPermission(ctx, editor.ID, perm); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_, _ = r.GrantPermission(ctx, editor.ID, perm)

	snap, _ := r.UserByID(ctx, u.ID)
	if len(snap.Roles[0].Permissions) != 1 {
		t.Fatalf("expected one permission, got %+v", snap.Roles[0].Permissions)
	}

	if _, err := r.RevokePermission(ctx, editor.ID, perm); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(snap.Roles[0].Permissions) != 1 {
		t.Fatalf("earlier snapshot must not change")
	}
	fresh, _ := r.UserByID(ctx, u.ID)
	if len(fresh.Roles[0].Permissions) != 0 {
		t.Fatalf("expected permission to be revoked, got %+v", fresh.Roles[0].Permissions)
	}
}
