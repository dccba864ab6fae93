package dto

import "github.com/noah-isme/ibs-portal-api/internal/models"

// UpdatePositionRequest captures PUT /users/:id/position.
type UpdatePositionRequest struct {
	Position models.Position `json:"position" binding:"required"`
}

// ReplaceRolesRequest captures PUT /users/:id/roles. An empty list clears all grants.
type ReplaceRolesRequest struct {
	Roles []models.AppRole `json:"roles"`
}

// UpdateNicknameRequest captures PUT /me/nickname.
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname" binding:"max=50"`
}

// PermissionsResponse is returned by GET /me/permissions.
type PermissionsResponse struct {
	models.Capabilities
	Roles         []models.AppRole  `json:"roles"`
	EditPositions []models.Position `json:"edit_positions"`
}
