package domain

import (
	"strings"
	"time"
)

// Built-in role names. Both are seeded at startup and can never be deleted.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User models an authenticated actor in the system.
//
// IsAdmin is a super-flag that bypasses every policy check. It is independent
// of membership in the admin role.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user currently holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames returns the names of the held roles in assignment order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role is a named bundle of permissions assignable to users.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsBuiltin reports whether the role is one of the reserved roles.
func (r Role) IsBuiltin() bool {
	return IsBuiltinRole(r.Name)
}

// IsBuiltinRole reports whether name is reserved.
func IsBuiltinRole(name string) bool {
	return name == RoleAdmin || name == RoleUser
}

// Permission is an allow-grant for an action on a resource type. An empty
// ResourceType covers actions that are not tied to a resource class.
type Permission struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type,omitempty"`
}

func (p Permission) String() string {
	if p.ResourceType == "" {
		return p.Action
	}
	return p.ResourceType + ":" + p.Action
}

// UserUpdate carries the optional fields of a profile update. Nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	FullName     *string
	PasswordHash *string
}

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
