package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

const auditSelect = `SELECT a.audit_id, a.credential_id, a.client_id, a.user_id, a.action, a.field_copied, a.ip_address, a.user_agent, a.timestamp,
	u.email AS user_email, c.client_name AS client_name
FROM credential_audit a
LEFT JOIN web_users u ON u.user_id = a.user_id
LEFT JOIN clients c ON c.client_id = a.client_id`

// AuditRepository appends and reads credential_audit rows. Rows are never updated.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one entry and populates its identity and timestamp.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	const query = `INSERT INTO credential_audit (credential_id, client_id, user_id, action, field_copied, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING audit_id, timestamp`
	row := r.db.QueryRowxContext(ctx, query, entry.CredentialID, entry.ClientID, entry.UserID, entry.Action, entry.FieldCopied, entry.IPAddress, entry.UserAgent)
	if err := row.Scan(&entry.AuditID, &entry.Timestamp); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// FindByID loads a single entry.
func (r *AuditRepository) FindByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	var entry models.AuditEntry
	if err := r.db.GetContext(ctx, &entry, auditSelect+` WHERE a.audit_id = $1`, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListRecent returns the newest entries across all clients.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return r.List(ctx, models.AuditFilter{Limit: limit})
}

// ListByClient returns the newest entries for a client.
func (r *AuditRepository) ListByClient(ctx context.Context, clientID int64, limit int) ([]models.AuditEntry, error) {
	return r.List(ctx, models.AuditFilter{ClientID: &clientID, Limit: limit})
}

// List returns entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Action != nil {
		args = append(args, *filter.Action)
		conditions = append(conditions, fmt.Sprintf("a.action = $%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("a.client_id = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("a.user_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("a.timestamp >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("a.timestamp < $%d", len(args)))
	}

	query := strings.Builder{}
	query.WriteString(auditSelect)
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY a.timestamp DESC, a.audit_id DESC")
	if filter.Limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", filter.Limit)
	}

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
