package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/dto"
	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.UserWithRoles, error)
	Get(ctx context.Context, id int64) (*models.UserWithRoles, error)
	UpdatePosition(ctx context.Context, actor models.Session, id int64, position models.Position) (*models.WebUser, error)
	ReplaceRoles(ctx context.Context, actor models.Session, id int64, roles []models.AppRole) ([]models.AppRole, error)
	Deactivate(ctx context.Context, actor models.Session, id int64) error
	UpdateNickname(ctx context.Context, userID int64, nickname string) error
}

// UserHandler manages user administration endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs a user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param position query string false "Position filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Email or name"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var filter models.UserFilter
	if raw := c.Query("position"); raw != "" {
		position, err := models.ParsePosition(raw)
		if err != nil {
			response.Error(c, appErrors.Validation(err, "invalid position"))
			return
		}
		filter.Position = &position
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
			return
		}
		filter.Active = &active
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	users, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, map[string]interface{}{"total": len(users)})
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	user, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

// UpdatePosition godoc
// @Summary Change a user's position
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param payload body dto.UpdatePositionRequest true "Position"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/position [put]
func (h *UserHandler) UpdatePosition(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid position payload"))
		return
	}
	actor, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	user, err := h.service.UpdatePosition(c.Request.Context(), actor, id, req.Position)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

// ReplaceRoles godoc
// @Summary Replace a user's roles
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param payload body dto.ReplaceRolesRequest true "Roles"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/roles [put]
func (h *UserHandler) ReplaceRoles(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReplaceRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid roles payload"))
		return
	}
	actor, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	roles, err := h.service.ReplaceRoles(c.Request.Context(), actor, id, req.Roles)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"user_id": id, "roles": roles})
}

// Deactivate godoc
// @Summary Deactivate a user
// @Tags Users
// @Param id path int true "User ID"
// @Success 204
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	actor, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), actor, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateNickname godoc
// @Summary Set the caller's nickname
// @Tags Users
// @Accept json
// @Param payload body dto.UpdateNicknameRequest true "Nickname"
// @Success 204
// @Security BearerAuth
// @Router /me/nickname [put]
func (h *UserHandler) UpdateNickname(c *gin.Context) {
	var req dto.UpdateNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid nickname payload"))
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.UpdateNickname(c.Request.Context(), session.UserID, req.Nickname); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
