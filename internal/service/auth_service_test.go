package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.WebUser
	userByID         *models.WebUser
	findByEmailErr   error
	findByIDErr      error
	createErr        error
	created          *models.WebUser
	refreshTokens    map[string]*models.RefreshToken
	createRefreshErr error
	revokedAll       []int64
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.WebUser, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id int64) (*models.WebUser, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.WebUser) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.UserID = 41
	m.created = user
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

type mockAuditRecorder struct {
	err     error
	actions []models.AuditAction
	session []models.Session
	rcs     []models.RecordContext
}

func (m *mockAuditRecorder) Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error) {
	m.actions = append(m.actions, action)
	m.session = append(m.session, session)
	m.rcs = append(m.rcs, rc)
	if m.err != nil {
		return nil, m.err
	}
	return &models.AuditEntry{AuditID: int64(len(m.actions)), Action: action}, nil
}

func authConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour, Issuer: "ibs-portal"}
}

func activeUser(t *testing.T, password string) *models.WebUser {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.WebUser{UserID: 7, AuthUserID: "auth-7", Email: "ada@ibs.test", PasswordHash: string(hash), FirstName: "Ada", LastName: "Obi", Position: models.PositionSenior, IsActive: true}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: activeUser(t, "password")}
	audit := &mockAuditRecorder{}
	svc := NewAuthService(repo, audit, validator.New(), zap.NewNop(), authConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ibs.test", Password: "password", IP: "10.0.0.1", UserAgent: "ua"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(7), res.User.UserID)
	assert.Len(t, repo.refreshTokens, 1)

	require.Equal(t, []models.AuditAction{models.AuditActionLogin}, audit.actions)
	assert.Equal(t, models.Session{UserID: 7, IPAddress: "10.0.0.1", UserAgent: "ua"}, audit.session[0])
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: activeUser(t, "password")}
	audit := &mockAuditRecorder{}
	svc := NewAuthService(repo, audit, nil, nil, authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ibs.test", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, audit.actions)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	user := activeUser(t, "password")
	user.IsActive = false
	svc := NewAuthService(&mockAuthRepo{userByEmail: user}, nil, nil, nil, authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ibs.test", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSingleSessionRevokesOldTokens(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: activeUser(t, "password")}
	cfg := authConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, nil, nil, nil, cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ibs.test", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, repo.revokedAll)
}

func TestAuthServiceSignupSwallowsAuditFailure(t *testing.T) {
	repo := &mockAuthRepo{}
	audit := &mockAuditRecorder{err: errors.New("audit table locked")}
	svc := NewAuthService(repo, audit, validator.New(), zap.NewNop(), authConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:      " New@IBS.test ",
		Password:   "longenough",
		FirstName:  "Chi",
		LastName:   "Eze",
		BirthDay:   3,
		BirthMonth: "March",
		Position:   models.PositionJunior,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, "new@ibs.test", repo.created.Email)
	assert.True(t, repo.created.IsActive)
	assert.NotEmpty(t, repo.created.AuthUserID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("longenough")))
	assert.Equal(t, int64(41), res.User.UserID)
	assert.Equal(t, []models.AuditAction{models.AuditActionLogin}, audit.actions)
}

func TestAuthServiceSignupRejections(t *testing.T) {
	base := models.SignupRequest{Email: "a@ibs.test", Password: "longenough", FirstName: "A", LastName: "B", BirthDay: 1, BirthMonth: "May", Position: models.PositionQA}

	t.Run("duplicate email", func(t *testing.T) {
		svc := NewAuthService(&mockAuthRepo{userByEmail: activeUser(t, "x")}, nil, nil, nil, authConfig())
		_, err := svc.Signup(context.Background(), base)
		assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown position", func(t *testing.T) {
		req := base
		req.Position = models.Position("Intern")
		svc := NewAuthService(&mockAuthRepo{}, nil, nil, nil, authConfig())
		_, err := svc.Signup(context.Background(), req)
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("short password", func(t *testing.T) {
		req := base
		req.Password = "short"
		svc := NewAuthService(&mockAuthRepo{}, nil, nil, nil, authConfig())
		_, err := svc.Signup(context.Background(), req)
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("profile insert fails", func(t *testing.T) {
		svc := NewAuthService(&mockAuthRepo{createErr: errors.New("unique violation")}, nil, nil, nil, authConfig())
		_, err := svc.Signup(context.Background(), base)
		assert.True(t, errors.Is(err, appErrors.ErrPersistence))
	})
}

func TestAuthServiceRefreshToken(t *testing.T) {
	user := activeUser(t, "password")
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: user.UserID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: 7, Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	audit := &mockAuditRecorder{}
	svc := NewAuthService(repo, audit, nil, nil, authConfig())

	err := svc.Logout(context.Background(), models.Session{UserID: 8}, "token")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, audit.actions)

	require.NoError(t, svc.Logout(context.Background(), models.Session{UserID: 7}, "token"))
	assert.True(t, repo.refreshTokens["token"].Revoked)
	assert.Equal(t, []models.AuditAction{models.AuditActionLogout}, audit.actions)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, nil, authConfig())
	user := activeUser(t, "password")
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, claims.UserID)
	assert.Equal(t, "auth-7", claims.AuthUserID)
	assert.Equal(t, models.PositionSenior, claims.Position)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
