package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,63}$`)

// PermissionValidator checks runtime grants against the policy vocabulary.
type PermissionValidator interface {
	ValidatePermission(p domain.Permission) error
}

// IdentityService implements registration, login, profile management and
// role administration on top of an IdentityRepository.
type IdentityService struct {
	repo      ports.IdentityRepository
	creds     ports.CredentialStore
	validator PermissionValidator
	log       zerolog.Logger
}

func NewIdentityService(
	repo ports.IdentityRepository,
	creds ports.CredentialStore,
	validator PermissionValidator,
	log zerolog.Logger,
) *IdentityService {
	return &IdentityService{repo: repo, creds: creds, validator: validator, log: log}
}

// Register creates an active, non-admin user without roles.
func (s *IdentityService) Register(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.creds.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, &domain.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return user, nil
}

// Login verifies the password and issues a bearer token whose subject is the user id.
func (s *IdentityService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !s.creds.Verify(password, user.PasswordHash) {
		return "", nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, domain.ErrInactiveUser
	}

	token, err := s.creds.IssueToken(strconv.FormatInt(user.ID, 10), 0)
	if err != nil {
		return "", nil, fmt.Errorf("login: %w", err)
	}
	return token, user, nil
}

func (s *IdentityService) Logout(ctx context.Context, token string) error {
	return s.creds.Revoke(ctx, token)
}

func (s *IdentityService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.UserByID(ctx, id)
}

func (s *IdentityService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *IdentityService) UpdateProfile(ctx context.Context, id int64, upd ports.ProfileUpdate) (*domain.User, error) {
	var change domain.UserUpdate
	if upd.Email != nil {
		email := domain.NormalizeEmail(*upd.Email)
		if email == "" {
			return nil, domain.ErrInvalidCredentials
		}
		change.Email = &email
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		change.FullName = &name
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, domain.ErrInvalidCredentials
		}
		hash, err := s.creds.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		change.PasswordHash = &hash
	}

	user, err := s.repo.UpdateUser(ctx, id, change)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", id).Msg("user profile updated")
	return user, nil
}

func (s *IdentityService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

func (s *IdentityService) SetAdmin(ctx context.Context, id int64, isAdmin bool) (*domain.User, error) {
	user, err := s.repo.SetAdmin(ctx, id, isAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Warn().Int64("user_id", id).Bool("is_admin", isAdmin).Msg("admin flag changed")
	return user, nil
}

func (s *IdentityService) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if !roleNamePattern.MatchString(name) {
		return nil, domain.ErrInvalidRoleName
	}

	role, err := s.repo.CreateRole(ctx, name)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("role_id", role.ID).Str("role", role.Name).Msg("role created")
	return role, nil
}

// DeleteRole refuses built-in roles by name before anything else is checked.
func (s *IdentityService) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.RoleByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsBuiltin() {
		return domain.ErrBuiltinRole
	}

	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("role_id", id).Str("role", role.Name).Msg("role deleted")
	return nil
}

func (s *IdentityService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *IdentityService) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role assigned")
	return nil
}

func (s *IdentityService) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, domain.ErrLastAdmin) {
			s.log.Warn().Int64("user_id", userID).Msg("refused to remove the last admin role")
		}
		return err
	}
	s.log.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role removed")
	return nil
}

func (s *IdentityService) GrantPermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	if err := s.validator.ValidatePermission(perm); err != nil {
		return nil, err
	}
	role, err := s.repo.GrantPermission(ctx, roleID, perm)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("role_id", roleID).Str("permission", perm.String()).Msg("permission granted")
	return role, nil
}

func (s *IdentityService) RevokePermission(ctx context.Context, roleID int64, perm domain.Permission) (*domain.Role, error) {
	role, err := s.repo.RevokePermission(ctx, roleID, perm)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("role_id", roleID).Str("permission", perm.String()).Msg("permission revoked")
	return role, nil
}

// BootstrapAdmin makes sure an account with the given email exists, carries
// the is_admin flag and holds the admin role. It is used at startup and by
// the create-admin command.
func (s *IdentityService) BootstrapAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	if err := s.repo.EnsureBuiltinRoles(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	user, err := s.repo.UserByEmail(ctx, domain.NormalizeEmail(email))
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user, err = s.Register(ctx, email, password, "Administrator")
		if err != nil {
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	if _, err := s.repo.SetAdmin(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	for _, r := range roles {
		if r.Name == domain.RoleAdmin {
			if err := s.repo.AssignRole(ctx, user.ID, r.ID); err != nil {
				return nil, fmt.Errorf("bootstrap admin: %w", err)
			}
		}
	}

	s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("admin account ready")
	return s.repo.UserByID(ctx, user.ID)
}
