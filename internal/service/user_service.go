package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.WebUser, error)
	FindByID(ctx context.Context, id int64) (*models.WebUser, error)
	RolesFor(ctx context.Context, userID int64) ([]models.AppRole, error)
	ReplaceRoles(ctx context.Context, userID int64, roles []models.AppRole) error
	UpdatePosition(ctx context.Context, id int64, position models.Position, ts time.Time) error
	UpdateNickname(ctx context.Context, id int64, nickname *string, ts time.Time) error
	Deactivate(ctx context.Context, id int64, ts time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID int64) error
}

type adminNotifier interface {
	NotifyAdmins(ctx context.Context, req models.NotifyRequest) (*models.NotifyResult, error)
}

// UserService manages profiles, positions and role grants.
type UserService struct {
	repo     userRepository
	policy   *AccessPolicy
	notifier adminNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, policy *AccessPolicy, notifier adminNotifier, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, policy: policy, notifier: notifier, logger: logger, now: time.Now}
}

// List returns users with their role grants.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserWithRoles, error) {
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	out := make([]models.UserWithRoles, 0, len(users))
	for _, user := range users {
		roles, err := s.repo.RolesFor(ctx, user.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user roles")
		}
		out = append(out, models.UserWithRoles{WebUser: user, Roles: nonNilRoles(roles)})
	}
	return out, nil
}

// Get returns a user with role grants.
func (s *UserService) Get(ctx context.Context, id int64) (*models.UserWithRoles, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.RolesFor(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user roles")
	}
	return &models.UserWithRoles{WebUser: *user, Roles: nonNilRoles(roles)}, nil
}

// LoadPrincipal resolves the acting user's position and roles from the store. Inactive
// profiles do not resolve.
func (s *UserService) LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	roles, err := s.repo.RolesFor(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user roles")
	}
	position := user.Position
	return &models.Principal{UserID: userID, Position: &position, Roles: nonNilRoles(roles)}, nil
}

// Capabilities resolves the permission set of a user. When the profile cannot be loaded the
// most restrictive set is returned alongside the error.
func (s *UserService) Capabilities(ctx context.Context, userID int64) (models.Capabilities, error) {
	principal, err := s.LoadPrincipal(ctx, userID)
	if err != nil {
		return s.policy.Resolve(nil, nil), err
	}
	return s.policy.ResolvePrincipal(principal), nil
}

// UpdatePosition changes a user's position and tells the user and the admins about it.
func (s *UserService) UpdatePosition(ctx context.Context, actor models.Session, id int64, position models.Position) (*models.WebUser, error) {
	if !position.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown position %q", position))
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Position
	if previous == position {
		return user, nil
	}

	now := s.now().UTC()
	if err := s.repo.UpdatePosition(ctx, id, position, now); err != nil {
		return nil, s.mutationError(err, "failed to update position")
	}
	user.Position = position
	user.UpdatedAt = now

	s.notifyPermissionChange(ctx, actor, id, fmt.Sprintf("Position changed from %s to %s", previous, position))
	return user, nil
}

// ReplaceRoles swaps the explicit role grants of a user. An empty list clears them.
func (s *UserService) ReplaceRoles(ctx context.Context, actor models.Session, id int64, roles []models.AppRole) ([]models.AppRole, error) {
	unique := make([]models.AppRole, 0, len(roles))
	seen := make(map[models.AppRole]struct{}, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", role))
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		unique = append(unique, role)
	}
	if actor.UserID == id && !containsRole(unique, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admins cannot revoke their own admin role")
	}

	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRoles(ctx, id, unique); err != nil {
		return nil, appErrors.Persistence(err, "failed to replace roles")
	}

	labels := make([]string, len(unique))
	for i, role := range unique {
		labels[i] = string(role)
	}
	summary := "none"
	if len(labels) > 0 {
		summary = strings.Join(labels, ", ")
	}
	s.notifyPermissionChange(ctx, actor, id, "Roles set to "+summary)
	return unique, nil
}

// Deactivate disables a user and revokes their sessions.
func (s *UserService) Deactivate(ctx context.Context, actor models.Session, id int64) error {
	if actor.UserID == id {
		return appErrors.Clone(appErrors.ErrForbidden, "users cannot deactivate themselves")
	}
	if err := s.repo.Deactivate(ctx, id, s.now().UTC()); err != nil {
		return s.mutationError(err, "failed to deactivate user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens of deactivated user", zap.Int64("user_id", id), zap.Error(err))
	}
	return nil
}

// UpdateNickname sets the caller's display nickname. A blank value clears it.
func (s *UserService) UpdateNickname(ctx context.Context, userID int64, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if len([]rune(nickname)) > 50 {
		return appErrors.Clone(appErrors.ErrValidation, "nickname must be at most 50 characters")
	}
	if err := s.repo.UpdateNickname(ctx, userID, optionalString(nickname), s.now().UTC()); err != nil {
		return s.mutationError(err, "failed to update nickname")
	}
	return nil
}

func (s *UserService) notifyPermissionChange(ctx context.Context, actor models.Session, userID int64, message string) {
	if s.notifier == nil {
		return
	}
	ref := userID
	_, err := s.notifier.NotifyAdmins(ctx, models.NotifyRequest{
		UserIDs:       []int64{userID},
		Type:          models.NotificationPermissionChange,
		Title:         "Permissions updated",
		Message:       message,
		ReferenceType: "user",
		ReferenceID:   &ref,
		NotifyAdmins:  true,
	})
	if err != nil {
		s.logger.Warn("permission change notification failed", zap.Int64("user_id", userID), zap.Int64("actor_id", actor.UserID), zap.Error(err))
	}
}

func (s *UserService) find(ctx context.Context, id int64) (*models.WebUser, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) mutationError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return appErrors.Persistence(err, message)
}

func containsRole(roles []models.AppRole, role models.AppRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func nonNilRoles(roles []models.AppRole) []models.AppRole {
	if roles == nil {
		return []models.AppRole{}
	}
	return roles
}
