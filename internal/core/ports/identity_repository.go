package ports

import (
	"context"

	"github.com/docqa/docqa-api/internal/core/domain"
)

// IdentityRepository persists users, roles, their memberships and role grants.
//
// UserByID and UserByEmail return the user with roles and role permissions
// loaded as one consistent snapshot.
type IdentityRepository interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error)
	// DeleteUser removes the user and its memberships. Deleting the last
	// admin fails with domain.ErrLastAdmin.
	DeleteUser(ctx context.Context, id int64) error
	// SetAdmin sets the is_admin flag. Clearing it on the last admin fails
	// with domain.ErrLastAdmin.
	SetAdmin(ctx context.Context, id int64, isAdmin bool) (*domain.User, error)

	CreateRole(ctx context.Context, name string) (*domain.Role, error)
	RoleByID(ctx context.Context, id int64) (*domain.Role, error)
	// ListRoles returns roles in insertion order.
	ListRoles(ctx context.Context) ([]*domain.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	EnsureBuiltinRoles(ctx context.Context) error

	// AssignRole is idempotent.
	AssignRole(ctx context.Context, userID, roleID int64) error
	// RemoveRole checks the last-admin invariant and removes the membership
	// as one atomic step.
	RemoveRole(ctx context.Context, userID, roleID int64) error

	GrantPermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error)
	RevokePermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error)
}
