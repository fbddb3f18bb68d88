package ports

import (
	"context"

	"github.com/docqa/docqa-api/internal/core/domain"
)

// ProfileUpdate carries optional self-service changes. Password is plain text.
type ProfileUpdate struct {
	Email    *string
	FullName *string
	Password *string
}

type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	Logout(ctx context.Context, token string) error
}

type UserService interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) (*domain.User, error)
}

type RoleService interface {
	CreateRole(ctx context.Context, name string) (*domain.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListRoles(ctx context.Context) ([]*domain.Role, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	GrantPermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error)
	RevokePermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error)
}
