package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

type clientService interface {
	Search(ctx context.Context, session models.Session, term string) (*models.ClientWithSystems, error)
	List(ctx context.Context) ([]models.Client, error)
	Get(ctx context.Context, session models.Session, id int64) (*models.ClientWithSystems, error)
	CreateCredential(ctx context.Context, session models.Session, clientID int64, input models.CredentialInput) (*models.Credential, error)
	UpdateCredential(ctx context.Context, session models.Session, id int64, input models.CredentialInput) (*models.Credential, error)
	DeleteCredential(ctx context.Context, session models.Session, id int64) error
}

// ClientHandler serves client lookup and credential maintenance.
type ClientHandler struct {
	service clientService
}

// NewClientHandler constructs the handler.
func NewClientHandler(service clientService) *ClientHandler {
	return &ClientHandler{service: service}
}

// List godoc
// @Summary List or search clients
// @Description Without search, lists every client. With search, returns the first matching client with systems and credentials and records VIEW.
// @Tags Clients
// @Produce json
// @Param search query string false "Client name, code, username, host or IP"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	term := strings.TrimSpace(c.Query("search"))
	if term == "" {
		clients, err := h.service.List(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, clients, map[string]interface{}{"total": len(clients)})
		return
	}

	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	client, err := h.service.Search(c.Request.Context(), session, term)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client)
}

// Get godoc
// @Summary Client detail
// @Tags Clients
// @Produce json
// @Param id path int true "Client ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /clients/{id} [get]
func (h *ClientHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	client, err := h.service.Get(c.Request.Context(), session, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client)
}

// CreateCredential godoc
// @Summary Add a credential to a client system
// @Tags Credentials
// @Accept json
// @Produce json
// @Param id path int true "Client ID"
// @Param payload body models.CredentialInput true "Credential"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /clients/{id}/credentials [post]
func (h *ClientHandler) CreateCredential(c *gin.Context) {
	clientID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var input models.CredentialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindError(err, "invalid credential payload"))
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	cred, err := h.service.CreateCredential(c.Request.Context(), session, clientID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cred)
}

// UpdateCredential godoc
// @Summary Update a credential
// @Tags Credentials
// @Accept json
// @Produce json
// @Param id path int true "Credential ID"
// @Param payload body models.CredentialInput true "Credential"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /credentials/{id} [put]
func (h *ClientHandler) UpdateCredential(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var input models.CredentialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindError(err, "invalid credential payload"))
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	cred, err := h.service.UpdateCredential(c.Request.Context(), session, id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cred)
}

// DeleteCredential godoc
// @Summary Delete a credential
// @Tags Credentials
// @Param id path int true "Credential ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /credentials/{id} [delete]
func (h *ClientHandler) DeleteCredential(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.DeleteCredential(c.Request.Context(), session, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
