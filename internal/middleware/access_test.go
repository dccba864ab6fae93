package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	"github.com/noah-isme/ibs-portal-api/pkg/config"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, s.err
}

type stubLoader struct {
	principals map[int64]*models.Principal
}

func (s stubLoader) LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error) {
	p, ok := s.principals[userID]
	if !ok {
		return nil, errors.New("profile missing")
	}
	return p, nil
}

type stubAudit struct {
	actions []models.AuditAction
	details []string
	err     error
}

func (s *stubAudit) Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error) {
	s.actions = append(s.actions, action)
	s.details = append(s.details, rc.Details)
	return &models.AuditEntry{Action: action}, s.err
}

type stubAlerts struct {
	alerts []models.NotifyRequest
}

func (s *stubAlerts) Dispatch(alert models.NotifyRequest) {
	s.alerts = append(s.alerts, alert)
}

func position(p models.Position) *models.Position {
	return &p
}

func newAccessRouter(t *testing.T, userID int64, loader stubLoader, audit *stubAudit, alerts *stubAlerts) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	policy, err := service.NewAccessPolicy(config.DefaultEditPositions)
	require.NoError(t, err)
	access := NewAccess(policy, loader, audit, alerts, service.NewMetricsService(), nil)

	router := gin.New()
	router.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: userID}}), access.Principal())
	router.GET("/caps", func(c *gin.Context) {
		c.JSON(http.StatusOK, CapabilitiesFrom(c))
	})
	router.DELETE("/credentials/:id", access.Require(models.CapabilityDelete), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/admin", access.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func do(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newAccessRouter(t, 1, stubLoader{}, &stubAudit{}, &stubAlerts{})

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/caps", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/caps", "forged").Code)
}

func TestRequireCapabilityAllowsEditPositions(t *testing.T) {
	loader := stubLoader{principals: map[int64]*models.Principal{1: {UserID: 1, Position: position(models.PositionDevOps)}}}
	audit := &stubAudit{}
	router := newAccessRouter(t, 1, loader, audit, &stubAlerts{})

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/credentials/5", "good").Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/admin", "good").Code)
}

func TestRequireCapabilityDeniesAndAudits(t *testing.T) {
	loader := stubLoader{principals: map[int64]*models.Principal{2: {UserID: 2, Position: position(models.PositionTrainee), Roles: []models.AppRole{models.RoleViewer}}}}
	audit := &stubAudit{}
	alerts := &stubAlerts{}
	router := newAccessRouter(t, 2, loader, audit, alerts)

	rec := do(router, http.MethodDelete, "/credentials/5", "good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")

	require.Equal(t, []models.AuditAction{models.AuditActionAccessDenied}, audit.actions)
	assert.Equal(t, "missing delete on DELETE /credentials/:id", audit.details[0])
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, models.NotificationAccessDenied, alerts.alerts[0].Type)
}

func TestDenialSurvivesAuditFailure(t *testing.T) {
	loader := stubLoader{principals: map[int64]*models.Principal{2: {UserID: 2, Position: position(models.PositionJunior)}}}
	audit := &stubAudit{err: errors.New("audit down")}
	router := newAccessRouter(t, 2, loader, audit, &stubAlerts{})

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodDelete, "/credentials/5", "good").Code)
}

func TestPrincipalFailsClosed(t *testing.T) {
	router := newAccessRouter(t, 9, stubLoader{}, &stubAudit{}, &stubAlerts{})

	rec := do(router, http.MethodGet, "/caps", "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"can_view":false,"can_copy":false,"can_create":false,"can_edit":false,"can_delete":false,"is_admin":false,"position":null}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodDelete, "/credentials/5", "good").Code)
}

func TestMDIsAdmin(t *testing.T) {
	loader := stubLoader{principals: map[int64]*models.Principal{3: {UserID: 3, Position: position(models.PositionMD)}}}
	router := newAccessRouter(t, 3, loader, &stubAudit{}, &stubAlerts{})

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodGet, "/admin", "good").Code)
}

func TestSessionUsesTokenIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/audit", nil)
	c.Request.Header.Set("User-Agent", "ext/1.0")
	c.Request.RemoteAddr = "192.0.2.10:5555"
	c.Set(ContextUserKey, &models.JWTClaims{UserID: 44})

	session := Session(c)
	assert.Equal(t, int64(44), session.UserID)
	assert.Equal(t, "ext/1.0", session.UserAgent)
	assert.Equal(t, "192.0.2.10", session.IPAddress)
}
