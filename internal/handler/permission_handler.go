package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/dto"
	"github.com/noah-isme/ibs-portal-api/internal/middleware"
	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

// PermissionHandler exposes the caller's resolved capabilities.
type PermissionHandler struct {
	policy *service.AccessPolicy
}

// NewPermissionHandler constructs the handler.
func NewPermissionHandler(policy *service.AccessPolicy) *PermissionHandler {
	return &PermissionHandler{policy: policy}
}

// Get godoc
// @Summary Resolved permissions of the caller
// @Description Capabilities are derived from the stored position and roles on every request
// @Tags Permissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/permissions [get]
func (h *PermissionHandler) Get(c *gin.Context) {
	res := dto.PermissionsResponse{
		Capabilities:  middleware.CapabilitiesFrom(c),
		Roles:         []models.AppRole{},
		EditPositions: h.policy.EditPositions(),
	}
	if principal := middleware.PrincipalFrom(c); principal != nil && principal.Roles != nil {
		res.Roles = principal.Roles
	}
	response.JSON(c, http.StatusOK, res)
}
