package middleware

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

const (
	// ContextPrincipalKey stores the *models.Principal loaded for the request.
	ContextPrincipalKey = "principal"
	// ContextCapabilitiesKey stores the resolved models.Capabilities.
	ContextCapabilitiesKey = "capabilities"
)

type principalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error)
}

type auditRecorder interface {
	Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error)
}

type alertSink interface {
	Dispatch(alert models.NotifyRequest)
}

// Access resolves capabilities per request and guards routes with them.
type Access struct {
	policy  *service.AccessPolicy
	users   principalLoader
	audit   auditRecorder
	alerts  alertSink
	metrics *service.MetricsService
	logger  *zap.Logger
}

// NewAccess wires the capability guard. audit, alerts and metrics may be nil.
func NewAccess(policy *service.AccessPolicy, users principalLoader, audit auditRecorder, alerts alertSink, metrics *service.MetricsService, logger *zap.Logger) *Access {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Access{policy: policy, users: users, audit: audit, alerts: alerts, metrics: metrics, logger: logger}
}

// Principal loads the caller's position and roles from the store. Roles are never read from
// the token. A failed lookup leaves the request with the all-false capability set.
func (a *Access) Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		principal, err := a.users.LoadPrincipal(c.Request.Context(), claims.UserID)
		if err != nil {
			a.logger.Warn("principal lookup failed, denying all capabilities", zap.Int64("user_id", claims.UserID), zap.Error(err))
			c.Set(ContextCapabilitiesKey, a.policy.Resolve(nil, nil))
			c.Next()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Set(ContextCapabilitiesKey, a.policy.ResolvePrincipal(principal))
		c.Next()
	}
}

// Require aborts with 403 unless the caller holds capability. Each denial is audited as
// ACCESS_DENIED and raised to the admins in the background.
func (a *Access) Require(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.policy.Allows(CapabilitiesFrom(c), capability) {
			c.Next()
			return
		}
		a.deny(c, capability)
	}
}

// RequireAdmin is Require(CapabilityAdmin).
func (a *Access) RequireAdmin() gin.HandlerFunc {
	return a.Require(models.CapabilityAdmin)
}

func (a *Access) deny(c *gin.Context, capability models.Capability) {
	session := Session(c)
	route := c.Request.Method + " " + c.FullPath()
	a.metrics.RecordAccessDenied(capability)

	if a.audit != nil {
		details := fmt.Sprintf("missing %s on %s", capability, route)
		if _, err := a.audit.Record(c.Request.Context(), session, models.AuditActionAccessDenied, models.RecordContext{Details: details}); err != nil {
			a.logger.Warn("failed to audit access denial", zap.Int64("user_id", session.UserID), zap.Error(err))
		}
	}
	if a.alerts != nil {
		a.alerts.Dispatch(models.NotifyRequest{
			Type:    models.NotificationAccessDenied,
			Title:   "Access denied",
			Message: fmt.Sprintf("User %d was denied %s on %s", session.UserID, capability, route),
		})
	}

	response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s permission required", capability)))
}

// CapabilitiesFrom returns the resolved set, or the all-false set when none was resolved.
func CapabilitiesFrom(c *gin.Context) models.Capabilities {
	value, ok := c.Get(ContextCapabilitiesKey)
	if !ok {
		return models.Capabilities{}
	}
	caps, _ := value.(models.Capabilities)
	return caps
}

// PrincipalFrom returns the loaded principal or nil.
func PrincipalFrom(c *gin.Context) *models.Principal {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil
	}
	principal, _ := value.(*models.Principal)
	return principal
}
