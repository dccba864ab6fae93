package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[int64]*models.WebUser
	roles     map[int64][]models.AppRole
	rolesErr  error
	replaced  map[int64][]models.AppRole
	revoked   []int64
	updateErr error
}

func newMockUserRepo(users ...models.WebUser) *mockUserRepo {
	repo := &mockUserRepo{users: map[int64]*models.WebUser{}, roles: map[int64][]models.AppRole{}, replaced: map[int64][]models.AppRole{}}
	for i := range users {
		u := users[i]
		repo.users[u.UserID] = &u
	}
	return repo
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.WebUser, error) {
	var out []models.WebUser
	for id := int64(1); id <= 100; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*models.WebUser, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) RolesFor(ctx context.Context, userID int64) ([]models.AppRole, error) {
	if m.rolesErr != nil {
		return nil, m.rolesErr
	}
	return m.roles[userID], nil
}

func (m *mockUserRepo) ReplaceRoles(ctx context.Context, userID int64, roles []models.AppRole) error {
	m.replaced[userID] = roles
	m.roles[userID] = roles
	return nil
}

func (m *mockUserRepo) UpdatePosition(ctx context.Context, id int64, position models.Position, ts time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Position = position
	return nil
}

func (m *mockUserRepo) UpdateNickname(ctx context.Context, id int64, nickname *string, ts time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Nickname = nickname
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id int64, ts time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsActive = false
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

type mockNotifier struct {
	requests []models.NotifyRequest
	err      error
}

func (m *mockNotifier) NotifyAdmins(ctx context.Context, req models.NotifyRequest) (*models.NotifyResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &models.NotifyResult{Delivered: req.UserIDs}, nil
}

func sampleUsers() []models.WebUser {
	return []models.WebUser{
		{UserID: 1, Email: "md@ibs.test", Position: models.PositionMD, IsActive: true},
		{UserID: 2, Email: "junior@ibs.test", Position: models.PositionJunior, IsActive: true},
		{UserID: 3, Email: "gone@ibs.test", Position: models.PositionSenior, IsActive: false},
	}
}

func TestUserServiceListAttachesRoles(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	repo.roles[2] = []models.AppRole{models.RoleAdmin}
	svc := NewUserService(repo, newDefaultPolicy(t), nil, nil)

	users, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Empty(t, users[0].Roles)
	assert.NotNil(t, users[0].Roles)
	assert.Equal(t, []models.AppRole{models.RoleAdmin}, users[1].Roles)
}

func TestUserServiceCapabilities(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	repo.roles[2] = []models.AppRole{models.RoleAdmin}
	svc := NewUserService(repo, newDefaultPolicy(t), nil, nil)
	ctx := context.Background()

	caps, err := svc.Capabilities(ctx, 2)
	require.NoError(t, err)
	assert.True(t, caps.IsAdmin)
	assert.True(t, caps.CanDelete)

	caps, err = svc.Capabilities(ctx, 3)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
	assert.False(t, caps.CanCreate)
	assert.False(t, caps.IsAdmin)
	assert.Nil(t, caps.Position)

	repo.rolesErr = errors.New("db down")
	caps, err = svc.Capabilities(ctx, 1)
	require.Error(t, err)
	assert.False(t, caps.IsAdmin)
	assert.False(t, caps.CanView)
}

func TestUserServiceUpdatePositionNotifies(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	notifier := &mockNotifier{}
	svc := NewUserService(repo, newDefaultPolicy(t), notifier, nil)

	user, err := svc.UpdatePosition(context.Background(), models.Session{UserID: 1}, 2, models.PositionSenior)
	require.NoError(t, err)
	assert.Equal(t, models.PositionSenior, user.Position)
	assert.Equal(t, models.PositionSenior, repo.users[2].Position)

	require.Len(t, notifier.requests, 1)
	req := notifier.requests[0]
	assert.Equal(t, models.NotificationPermissionChange, req.Type)
	assert.Equal(t, []int64{2}, req.UserIDs)
	assert.True(t, req.NotifyAdmins)
	assert.Equal(t, "Position changed from Junior to Senior", req.Message)
}

func TestUserServiceUpdatePositionEdges(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	notifier := &mockNotifier{err: errors.New("fan-out failed")}
	svc := NewUserService(repo, newDefaultPolicy(t), notifier, nil)
	ctx := context.Background()

	_, err := svc.UpdatePosition(ctx, models.Session{UserID: 1}, 2, models.Position("CEO"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdatePosition(ctx, models.Session{UserID: 1}, 99, models.PositionQA)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.UpdatePosition(ctx, models.Session{UserID: 1}, 2, models.PositionJunior)
	require.NoError(t, err)
	assert.Empty(t, notifier.requests)

	_, err = svc.UpdatePosition(ctx, models.Session{UserID: 1}, 2, models.PositionQA)
	require.NoError(t, err, "notification failure must not undo the change")
	assert.Len(t, notifier.requests, 1)
}

func TestUserServiceReplaceRoles(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	notifier := &mockNotifier{}
	svc := NewUserService(repo, newDefaultPolicy(t), notifier, nil)
	ctx := context.Background()

	roles, err := svc.ReplaceRoles(ctx, models.Session{UserID: 1}, 2, []models.AppRole{models.RoleManager, models.RoleManager, models.RoleViewer})
	require.NoError(t, err)
	assert.Equal(t, []models.AppRole{models.RoleManager, models.RoleViewer}, roles)
	assert.Equal(t, roles, repo.replaced[2])
	assert.Equal(t, "Roles set to Manager, Viewer", notifier.requests[0].Message)

	_, err = svc.ReplaceRoles(ctx, models.Session{UserID: 1}, 2, []models.AppRole{"Root"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ReplaceRoles(ctx, models.Session{UserID: 2}, 2, nil)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceDeactivate(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	svc := NewUserService(repo, newDefaultPolicy(t), nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, models.Session{UserID: 1}, 2))
	assert.False(t, repo.users[2].IsActive)
	assert.Equal(t, []int64{2}, repo.revoked)

	assert.True(t, errors.Is(svc.Deactivate(ctx, models.Session{UserID: 1}, 1), appErrors.ErrForbidden))
	assert.True(t, errors.Is(svc.Deactivate(ctx, models.Session{UserID: 1}, 50), appErrors.ErrNotFound))
}

func TestUserServiceUpdateNickname(t *testing.T) {
	repo := newMockUserRepo(sampleUsers()...)
	svc := NewUserService(repo, newDefaultPolicy(t), nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.UpdateNickname(ctx, 2, "  Chichi "))
	require.NotNil(t, repo.users[2].Nickname)
	assert.Equal(t, "Chichi", *repo.users[2].Nickname)

	require.NoError(t, svc.UpdateNickname(ctx, 2, " "))
	assert.Nil(t, repo.users[2].Nickname)
}
