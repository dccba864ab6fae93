package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/export"
)

const (
	auditCachePattern  = "audit:*"
	maxUserAgentLength = 512
	maxExportRows      = 5000
)

type auditRepository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	FindByID(ctx context.Context, id int64) (*models.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	ListByClient(ctx context.Context, clientID int64, limit int) ([]models.AuditEntry, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// Clipboard is the destination of a copy action.
type Clipboard interface {
	WriteAll(text string) error
}

// AuditConfig tunes listing limits and cache lifetime.
type AuditConfig struct {
	DefaultLimit int
	MaxLimit     int
	ClientLimit  int
	CacheTTL     time.Duration
}

// ExportFile is a rendered audit download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// AuditService records one immutable entry per sensitive action. It never checks policy;
// callers gate mutating actions before recording them.
type AuditService struct {
	repo      auditRepository
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	config    AuditConfig
	renderers map[models.ExportFormat]export.Renderer
	now       func() time.Time
}

// NewAuditService constructs the recorder.
func NewAuditService(repo auditRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 200
	}
	if cfg.ClientLimit <= 0 {
		cfg.ClientLimit = 100
	}
	return &AuditService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVRenderer(),
			models.ExportFormatPDF: export.NewPDFRenderer(),
		},
		now: time.Now,
	}
}

// Record appends exactly one entry for action. The acting user and client context come from
// session, never from the caller's payload.
func (s *AuditService) Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error) {
	if !action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audit action %q", action))
	}

	field := strings.TrimSpace(rc.FieldCopied)
	if action != models.AuditActionCopy && field != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field_copied is only allowed for COPY")
	}

	entry := &models.AuditEntry{
		CredentialID: rc.CredentialID,
		ClientID:     rc.ClientID,
		Action:       action,
		IPAddress:    optionalString(session.IPAddress),
		UserAgent:    optionalString(truncateRunes(session.UserAgent, maxUserAgentLength)),
	}
	if session.UserID > 0 {
		userID := session.UserID
		entry.UserID = &userID
	}
	if field != "" {
		entry.FieldCopied = &field
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.metrics.RecordAudit(action, false)
		return nil, appErrors.Persistence(err, "failed to record audit entry")
	}
	s.metrics.RecordAudit(action, true)

	fields := []zap.Field{zap.Int64("audit_id", entry.AuditID), zap.String("action", string(action)), zap.Int64("user_id", session.UserID)}
	if rc.Details != "" {
		fields = append(fields, zap.String("details", rc.Details))
	}
	s.logger.Info("audit recorded", fields...)

	s.cache.Invalidate(ctx, auditCachePattern)
	return entry, nil
}

// CopyWithAudit writes text to the clipboard and then records a COPY entry. A clipboard
// failure returns before anything is recorded. An audit failure after a successful copy is
// still a failure; the clipboard keeps the text.
func (s *AuditService) CopyWithAudit(ctx context.Context, clipboard Clipboard, session models.Session, text string, credentialID, clientID *int64, fieldName string) (*models.AuditEntry, error) {
	if strings.TrimSpace(fieldName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field name is required")
	}
	if clipboard == nil {
		return nil, appErrors.Clone(appErrors.ErrClipboard, "clipboard unavailable")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrClipboard.Code, appErrors.ErrClipboard.Status, appErrors.ErrClipboard.Message)
	}

	entry, err := s.Record(ctx, session, models.AuditActionCopy, models.RecordContext{
		CredentialID: credentialID,
		ClientID:     clientID,
		FieldCopied:  fieldName,
	})
	if err != nil {
		s.logger.Warn("clipboard written but copy audit failed", zap.Int64("user_id", session.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCopyAuditFailed.Code, appErrors.ErrCopyAuditFailed.Status, appErrors.ErrCopyAuditFailed.Message)
	}
	return entry, nil
}

// Get loads one entry by id.
func (s *AuditService) Get(ctx context.Context, id int64) (*models.AuditEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit entry not found")
		}
		return nil, appErrors.Persistence(err, "failed to load audit entry")
	}
	return entry, nil
}

// ListRecent returns the newest entries. limit defaults to 50 and is capped at the max.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	key := "audit:recent:" + strconv.Itoa(limit)
	var cached []models.AuditEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load audit trail")
	}
	entries = nonNilEntries(entries)
	s.cache.Set(ctx, key, entries, s.config.CacheTTL)
	return entries, nil
}

// ListByClient returns the newest entries for one client.
func (s *AuditService) ListByClient(ctx context.Context, clientID int64) ([]models.AuditEntry, error) {
	key := "audit:client:" + strconv.FormatInt(clientID, 10)
	var cached []models.AuditEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	entries, err := s.repo.ListByClient(ctx, clientID, s.config.ClientLimit)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load client audit trail")
	}
	entries = nonNilEntries(entries)
	s.cache.Set(ctx, key, entries, s.config.CacheTTL)
	return entries, nil
}

// Export renders the filtered trail as a downloadable document.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter, format models.ExportFormat) (*ExportFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if filter.Action != nil && !filter.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audit action")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load audit trail")
	}

	table := export.Table{
		Title:   "Credential audit trail",
		Columns: []string{"Timestamp", "User", "Action", "Client", "Credential", "Field", "IP", "User agent"},
	}
	for _, e := range entries {
		table.AddRow(
			e.Timestamp.UTC().Format(time.RFC3339),
			userLabel(e),
			string(e.Action),
			deref(e.ClientName),
			int64Label(e.CredentialID),
			deref(e.FieldCopied),
			deref(e.IPAddress),
			deref(e.UserAgent),
		)
	}

	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("audit-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func userLabel(e models.AuditEntry) string {
	if e.UserEmail != nil {
		return *e.UserEmail
	}
	return int64Label(e.UserID)
}

func nonNilEntries(entries []models.AuditEntry) []models.AuditEntry {
	if entries == nil {
		return []models.AuditEntry{}
	}
	return entries
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func int64Label(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
