package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/dto"
	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

type auditService interface {
	Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error)
	Get(ctx context.Context, id int64) (*models.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	ListByClient(ctx context.Context, clientID int64) ([]models.AuditEntry, error)
	Export(ctx context.Context, filter models.AuditFilter, format models.ExportFormat) (*service.ExportFile, error)
}

// AuditHandler exposes the credential audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// Record godoc
// @Summary Record an audit entry
// @Description Used by clients that act outside the API, such as a COPY from the browser extension. The acting user comes from the token.
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.RecordAuditRequest true "Audit entry"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /audit [post]
func (h *AuditHandler) Record(c *gin.Context) {
	var req dto.RecordAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid audit payload"))
		return
	}
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entry, err := h.service.Record(c.Request.Context(), session, req.Action, req.RecordContext())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Recent godoc
// @Summary Latest audit entries
// @Tags Audit
// @Produce json
// @Param limit query int false "Max entries (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audit [get]
func (h *AuditHandler) Recent(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := h.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// Get godoc
// @Summary Audit entry by ID
// @Tags Audit
// @Produce json
// @Param id path int true "Audit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /audit/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	entry, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry)
}

// ByClient godoc
// @Summary Audit entries of one client
// @Tags Audit
// @Produce json
// @Param id path int true "Client ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audit/clients/{id} [get]
func (h *AuditHandler) ByClient(c *gin.Context) {
	clientID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.ListByClient(c.Request.Context(), clientID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// Export godoc
// @Summary Export the audit trail
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param action query string false "Audit action"
// @Param client_id query int false "Client ID"
// @Param user_id query int false "User ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))

	file, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func parseAuditFilter(c *gin.Context) (models.AuditFilter, error) {
	var filter models.AuditFilter
	if raw := c.Query("action"); raw != "" {
		action := models.AuditAction(strings.ToUpper(raw))
		filter.Action = &action
	}
	for name, dest := range map[string]**int64{"client_id": &filter.ClientID, "user_id": &filter.UserID} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
		}
		*dest = &id
	}
	for name, dest := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, name+" must be an RFC3339 timestamp")
		}
		*dest = &ts
	}
	return filter, nil
}
