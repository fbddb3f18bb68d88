// Package memory provides an in-process identity store for development and
// tests. All state lives behind one lock, so every check-then-mutate sequence
// is atomic.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

type userRecord struct {
	user    domain.User
	roleIDs []int64
}

// IdentityRepository implements ports.IdentityRepository in memory.
type IdentityRepository struct {
	mu         sync.RWMutex
	users      map[int64]*userRecord
	emails     map[string]int64
	roles      map[int64]*domain.Role
	roleOrder  []int64
	nextUserID int64
	nextRoleID int64
	now        func() time.Time
}

var _ ports.IdentityRepository = (*IdentityRepository)(nil)

// NewIdentityRepository returns a store seeded with the built-in roles.
func NewIdentityRepository() *IdentityRepository {
	r := &IdentityRepository{
		users:  make(map[int64]*userRecord),
		emails: make(map[string]int64),
		roles:  make(map[int64]*domain.Role),
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.seedBuiltinRoles()
	return r
}

func (r *IdentityRepository) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, exists := r.emails[email]; exists {
		return nil, domain.ErrDuplicateEmail
	}

	r.nextUserID++
	now := r.now()
	rec := &userRecord{user: *user}
	rec.user.ID = r.nextUserID
	rec.user.Email = email
	rec.user.Roles = nil
	rec.user.CreatedAt = now
	rec.user.UpdatedAt = now

	r.users[rec.user.ID] = rec
	r.emails[email] = rec.user.ID
	return r.snapshot(rec), nil
}

func (r *IdentityRepository) UserByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.snapshot(rec), nil
}

func (r *IdentityRepository) UserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.snapshot(r.users[id]), nil
}

func (r *IdentityRepository) ListUsers(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.snapshot(r.users[id]))
	}
	return out, nil
}

func (r *IdentityRepository) UpdateUser(_ context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	if upd.Email != nil {
		email := domain.NormalizeEmail(*upd.Email)
		if owner, taken := r.emails[email]; taken && owner != id {
			return nil, domain.ErrDuplicateEmail
		}
		delete(r.emails, rec.user.Email)
		rec.user.Email = email
		r.emails[email] = id
	}
	if upd.FullName != nil {
		rec.user.FullName = *upd.FullName
	}
	if upd.PasswordHash != nil {
		rec.user.PasswordHash = *upd.PasswordHash
	}
	rec.user.UpdatedAt = r.now()
	return r.snapshot(rec), nil
}

func (r *IdentityRepository) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if r.isAdmin(rec) && r.countAdmins() <= 1 {
		return domain.ErrLastAdmin
	}

	delete(r.emails, rec.user.Email)
	delete(r.users, id)
	return nil
}

func (r *IdentityRepository) SetAdmin(_ context.Context, id int64, isAdmin bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if !isAdmin && r.isAdmin(rec) && r.countAdmins() <= 1 {
		return nil, domain.ErrLastAdmin
	}

	rec.user.IsAdmin = isAdmin
	rec.user.UpdatedAt = r.now()
	return r.snapshot(rec), nil
}

func (r *IdentityRepository) CreateRole(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roleByName(name) != nil {
		return nil, domain.ErrRoleExists
	}
	return cloneRole(r.insertRole(name)), nil
}

func (r *IdentityRepository) RoleByID(_ context.Context, id int64) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(role), nil
}

func (r *IdentityRepository) ListRoles(_ context.Context) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Role, 0, len(r.roleOrder))
	for _, id := range r.roleOrder {
		out = append(out, cloneRole(r.roles[id]))
	}
	return out, nil
}

func (r *IdentityRepository) DeleteRole(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[id]
	if !ok {
		return domain.ErrRoleNotFound
	}
	if role.IsBuiltin() {
		return domain.ErrBuiltinRole
	}

	delete(r.roles, id)
	r.roleOrder = slices.DeleteFunc(r.roleOrder, func(v int64) bool { return v == id })
	for _, rec := range r.users {
		rec.roleIDs = slices.DeleteFunc(rec.roleIDs, func(v int64) bool { return v == id })
	}
	return nil
}

func (r *IdentityRepository) EnsureBuiltinRoles(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seedBuiltinRoles()
	return nil
}

// seedBuiltinRoles requires r.mu to be held or r to be unshared.
func (r *IdentityRepository) seedBuiltinRoles() {
	for _, name := range []string{domain.RoleAdmin, domain.RoleUser} {
		if r.roleByName(name) == nil {
			r.insertRole(name)
		}
	}
}

func (r *IdentityRepository) AssignRole(_ context.Context, userID, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if _, ok := r.roles[roleID]; !ok {
		return domain.ErrRoleNotFound
	}
	if !slices.Contains(rec.roleIDs, roleID) {
		rec.roleIDs = append(rec.roleIDs, roleID)
	}
	return nil
}

func (r *IdentityRepository) RemoveRole(_ context.Context, userID, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	role, ok := r.roles[roleID]
	if !ok {
		return domain.ErrRoleNotFound
	}
	if !slices.Contains(rec.roleIDs, roleID) {
		return nil
	}
	if role.Name == domain.RoleAdmin && rec.user.IsAdmin && r.countAdmins() <= 1 {
		return domain.ErrLastAdmin
	}

	rec.roleIDs = slices.DeleteFunc(rec.roleIDs, func(v int64) bool { return v == roleID })
	return nil
}

func (r *IdentityRepository) GrantPermission(_ context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	if !slices.Contains(role.Permissions, perm) {
		role.Permissions = append(role.Permissions, perm)
	}
	return cloneRole(role), nil
}

func (r *IdentityRepository) RevokePermission(_ context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	role.Permissions = slices.DeleteFunc(role.Permissions, func(p domain.Permission) bool { return p == perm })
	return cloneRole(role), nil
}

// isAdmin and countAdmins use the same definition of an admin: the is_admin
// flag set and the admin role held. Callers hold r.mu.
func (r *IdentityRepository) isAdmin(rec *userRecord) bool {
	if !rec.user.IsAdmin {
		return false
	}
	admin := r.roleByName(domain.RoleAdmin)
	return admin != nil && slices.Contains(rec.roleIDs, admin.ID)
}

func (r *IdentityRepository) countAdmins() int {
	n := 0
	for _, rec := range r.users {
		if r.isAdmin(rec) {
			n++
		}
	}
	return n
}

func (r *IdentityRepository) roleByName(name string) *domain.Role {
	for _, id := range r.roleOrder {
		if r.roles[id].Name == name {
			return r.roles[id]
		}
	}
	return nil
}

func (r *IdentityRepository) insertRole(name string) *domain.Role {
	r.nextRoleID++
	role := &domain.Role{ID: r.nextRoleID, Name: name, CreatedAt: r.now()}
	r.roles[role.ID] = role
	r.roleOrder = append(r.roleOrder, role.ID)
	return role
}

func (r *IdentityRepository) snapshot(rec *userRecord) *domain.User {
	u := rec.user
	u.Roles = make([]domain.Role, 0, len(rec.roleIDs))
	for _, id := range rec.roleIDs {
		if role, ok := r.roles[id]; ok {
			u.Roles = append(u.Roles, *cloneRole(role))
		}
	}
	return &u
}

func cloneRole(role *domain.Role) *domain.Role {
	c := *role
	c.Permissions = slices.Clone(role.Permissions)
	return &c
}
