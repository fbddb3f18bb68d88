package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const pgUniqueViolation = "23505"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// DBInterface is the subset of pgxpool.Pool the repository needs.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IdentityRepository implements ports.IdentityRepository on Postgres.
//
// Every mutation that can change the set of admins (admin role removal,
// is_admin changes, user deletion) first locks the admin role row with
// SELECT ... FOR UPDATE, so the admin count it then reads cannot change
// until the transaction ends.
type IdentityRepository struct {
	db  DBInterface
	log zerolog.Logger
}

var _ ports.IdentityRepository = (*IdentityRepository)(nil)

func NewIdentityRepository(db DBInterface, log zerolog.Logger) *IdentityRepository {
	return &IdentityRepository{db: db, log: log}
}

// userRoleRow is one row of the users ⟕ user_roles ⟕ roles ⟕ role_permissions join.
type userRoleRow struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	FullName     string    `db:"full_name"`
	IsActive     bool      `db:"is_active"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	RoleID       *int64    `db:"role_id"`
	RoleName     *string   `db:"role_name"`
	Action       *string   `db:"action"`
	ResourceType *string   `db:"resource_type"`
}

type roleRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
	Action       *string   `db:"action"`
	ResourceType *string   `db:"resource_type"`
}

// userSnapshotQuery reads users with their roles and grants in a single
// statement, so the result reflects one consistent snapshot.
func userSnapshotQuery() squirrel.SelectBuilder {
	return psql.Select(
		"u.id", "u.email", "u.password_hash", "u.full_name", "u.is_active", "u.is_admin",
		"u.created_at", "u.updated_at",
		"r.id AS role_id", "r.name AS role_name", "p.action", "p.resource_type",
	).
		From("users u").
		LeftJoin("user_roles ur ON ur.user_id = u.id").
		LeftJoin("roles r ON r.id = ur.role_id").
		LeftJoin("role_permissions p ON p.role_id = r.id").
		OrderBy("u.id", "ur.assigned_at", "r.id", "p.action", "p.resource_type")
}

func (r *IdentityRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query, args, err := psql.Insert("users").
		Columns("email", "password_hash", "full_name", "is_active", "is_admin").
		Values(domain.NormalizeEmail(user.Email), user.PasswordHash, user.FullName, user.IsActive, user.IsAdmin).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}

	created := *user
	created.Email = domain.NormalizeEmail(user.Email)
	created.Roles = []domain.Role{}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &created, nil
}

func (r *IdentityRepository) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.oneUser(ctx, squirrel.Eq{"u.id": id})
}

func (r *IdentityRepository) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.oneUser(ctx, squirrel.Eq{"u.email": domain.NormalizeEmail(email)})
}

func (r *IdentityRepository) oneUser(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	users, err := r.selectUsers(ctx, userSnapshotQuery().Where(where))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return users[0], nil
}

func (r *IdentityRepository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return r.selectUsers(ctx, userSnapshotQuery())
}

func (r *IdentityRepository) selectUsers(ctx context.Context, qb squirrel.SelectBuilder) ([]*domain.User, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []userRoleRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}
	return foldUsers(rows), nil
}

func (r *IdentityRepository) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	qb := psql.Update("users").
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id})
	if upd.Email != nil {
		qb = qb.Set("email", domain.NormalizeEmail(*upd.Email))
	}
	if upd.FullName != nil {
		qb = qb.Set("full_name", *upd.FullName)
	}
	if upd.PasswordHash != nil {
		qb = qb.Set("password_hash", *upd.PasswordHash)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrUserNotFound
	}
	return r.UserByID(ctx, id)
}

func (r *IdentityRepository) DeleteUser(ctx context.Context, id int64) error {
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		adminRoleID, err := lockAdminRole(ctx, tx)
		if err != nil {
			return err
		}
		isAdmin, err := countsAsAdmin(ctx, tx, id, adminRoleID)
		if err != nil {
			return err
		}
		if isAdmin {
			if err := requireOtherAdmin(ctx, tx, adminRoleID); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

func (r *IdentityRepository) SetAdmin(ctx context.Context, id int64, isAdmin bool) (*domain.User, error) {
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		adminRoleID, err := lockAdminRole(ctx, tx)
		if err != nil {
			return err
		}
		if !isAdmin {
			counts, err := countsAsAdmin(ctx, tx, id, adminRoleID)
			if err != nil {
				return err
			}
			if counts {
				if err := requireOtherAdmin(ctx, tx, adminRoleID); err != nil {
					return err
				}
			}
		}

		tag, err := tx.Exec(ctx, "UPDATE users SET is_admin = $1, updated_at = now() WHERE id = $2", isAdmin, id)
		if err != nil {
			return fmt.Errorf("updating admin flag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.UserByID(ctx, id)
}

func (r *IdentityRepository) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	role := &domain.Role{Name: name, Permissions: []domain.Permission{}}
	err := r.db.QueryRow(ctx, "INSERT INTO roles (name) VALUES ($1) RETURNING id, created_at", name).
		Scan(&role.ID, &role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrRoleExists
		}
		return nil, fmt.Errorf("inserting role: %w", err)
	}
	return role, nil
}

func roleQuery() squirrel.SelectBuilder {
	return psql.Select("r.id", "r.name", "r.created_at", "p.action", "p.resource_type").
		From("roles r").
		LeftJoin("role_permissions p ON p.role_id = r.id").
		OrderBy("r.id", "p.action", "p.resource_type")
}

func (r *IdentityRepository) RoleByID(ctx context.Context, id int64) (*domain.Role, error) {
	roles, err := r.selectRoles(ctx, roleQuery().Where(squirrel.Eq{"r.id": id}))
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, domain.ErrRoleNotFound
	}
	return roles[0], nil
}

func (r *IdentityRepository) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return r.selectRoles(ctx, roleQuery())
}

func (r *IdentityRepository) selectRoles(ctx context.Context, qb squirrel.SelectBuilder) ([]*domain.Role, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []roleRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning roles: %w", err)
	}
	return foldRoles(rows), nil
}

func (r *IdentityRepository) DeleteRole(ctx context.Context, id int64) error {
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		var name string
		if err := tx.QueryRow(ctx, "SELECT name FROM roles WHERE id = $1 FOR UPDATE", id).Scan(&name); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRoleNotFound
			}
			return fmt.Errorf("locking role: %w", err)
		}
		if domain.IsBuiltinRole(name) {
			return domain.ErrBuiltinRole
		}
		if _, err := tx.Exec(ctx, "DELETE FROM roles WHERE id = $1", id); err != nil {
			return fmt.Errorf("deleting role: %w", err)
		}
		return nil
	})
}

func (r *IdentityRepository) EnsureBuiltinRoles(ctx context.Context) error {
	query, args, err := psql.Insert("roles").
		Columns("name").
		Values(domain.RoleAdmin).
		Values(domain.RoleUser).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("seeding built-in roles: %w", err)
	}
	return nil
}

func (r *IdentityRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		if err := userExists(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT (user_id, role_id) DO NOTHING",
			userID, roleID)
		if err != nil {
			return fmt.Errorf("assigning role: %w", err)
		}
		return nil
	})
}

// RemoveRole locks the role row before reading the membership and the admin
// count, so two concurrent removals of the admin role run one after the other.
func (r *IdentityRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		name, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		var isAdmin, held bool
		err = tx.QueryRow(ctx,
			`SELECT u.is_admin, EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role_id = $2)
			 FROM users u WHERE u.id = $1`,
			userID, roleID).Scan(&isAdmin, &held)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("reading membership: %w", err)
		}
		if !held {
			return nil
		}
		if name == domain.RoleAdmin && isAdmin {
			if err := requireOtherAdmin(ctx, tx, roleID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, "DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2", userID, roleID); err != nil {
			return fmt.Errorf("removing role: %w", err)
		}
		return nil
	})
}

func (r *IdentityRepository) GrantPermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, action, resource_type) VALUES ($1, $2, $3)
			 ON CONFLICT (role_id, action, resource_type) DO NOTHING`,
			roleID, perm.Action, perm.ResourceType)
		if err != nil {
			return fmt.Errorf("granting permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.RoleByID(ctx, roleID)
}

func (r *IdentityRepository) RevokePermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"DELETE FROM role_permissions WHERE role_id = $1 AND action = $2 AND resource_type = $3",
			roleID, perm.Action, perm.ResourceType)
		if err != nil {
			return fmt.Errorf("revoking permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.RoleByID(ctx, roleID)
}

func (r *IdentityRepository) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
			return
		}
		if cmErr := tx.Commit(ctx); cmErr != nil {
			err = fmt.Errorf("commit transaction: %w", cmErr)
		}
	}()
	return fn(tx)
}

func lockRole(ctx context.Context, tx pgx.Tx, roleID int64) (string, error) {
	var name string
	if err := tx.QueryRow(ctx, "SELECT name FROM roles WHERE id = $1 FOR UPDATE", roleID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrRoleNotFound
		}
		return "", fmt.Errorf("locking role: %w", err)
	}
	return name, nil
}

func lockAdminRole(ctx context.Context, tx pgx.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1 FOR UPDATE", domain.RoleAdmin).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrRoleNotFound
		}
		return 0, fmt.Errorf("locking admin role: %w", err)
	}
	return id, nil
}

func userExists(ctx context.Context, tx pgx.Tx, userID int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return fmt.Errorf("checking user: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

// countsAsAdmin reports whether the user has is_admin set and holds the admin role.
func countsAsAdmin(ctx context.Context, tx pgx.Tx, userID, adminRoleID int64) (bool, error) {
	var isAdmin, held bool
	err := tx.QueryRow(ctx,
		`SELECT u.is_admin, EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role_id = $2)
		 FROM users u WHERE u.id = $1`,
		userID, adminRoleID).Scan(&isAdmin, &held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrUserNotFound
		}
		return false, fmt.Errorf("reading admin state: %w", err)
	}
	return isAdmin && held, nil
}

// requireOtherAdmin fails with ErrLastAdmin unless more than one user has
// is_admin set and holds the admin role. The admin role row must be locked.
func requireOtherAdmin(ctx context.Context, tx pgx.Tx, adminRoleID int64) error {
	var n int64
	err := tx.QueryRow(ctx,
		`SELECT count(*) FROM users u JOIN user_roles ur ON ur.user_id = u.id
		 WHERE ur.role_id = $1 AND u.is_admin`,
		adminRoleID).Scan(&n)
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if n <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}

func foldUsers(rows []userRoleRow) []*domain.User {
	var (
		out     []*domain.User
		cur     *domain.User
		curRole *domain.Role
	)
	for _, row := range rows {
		if cur == nil || cur.ID != row.ID {
			cur = &domain.User{
				ID:           row.ID,
				Email:        row.Email,
				PasswordHash: row.PasswordHash,
				FullName:     row.FullName,
				IsActive:     row.IsActive,
				IsAdmin:      row.IsAdmin,
				Roles:        []domain.Role{},
				CreatedAt:    row.CreatedAt,
				UpdatedAt:    row.UpdatedAt,
			}
			out = append(out, cur)
			curRole = nil
		}
		if row.RoleID == nil {
			continue
		}
		if curRole == nil || curRole.ID != *row.RoleID {
			cur.Roles = append(cur.Roles, domain.Role{ID: *row.RoleID, Name: deref(row.RoleName), Permissions: []domain.Permission{}})
			curRole = &cur.Roles[len(cur.Roles)-1]
		}
		if row.Action != nil {
			curRole.Permissions = append(curRole.Permissions, domain.Permission{Action: *row.Action, ResourceType: deref(row.ResourceType)})
		}
	}
	return out
}

func foldRoles(rows []roleRow) []*domain.Role {
	var (
		out []*domain.Role
		cur *domain.Role
	)
	for _, row := range rows {
		if cur == nil || cur.ID != row.ID {
			cur = &domain.Role{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt, Permissions: []domain.Permission{}}
			out = append(out, cur)
		}
		if row.Action != nil {
			cur.Permissions = append(cur.Permissions, domain.Permission{Action: *row.Action, ResourceType: deref(row.ResourceType)})
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
