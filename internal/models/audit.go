package models

import "time"

// AuditAction tags a sensitive action.
type AuditAction string

const (
	AuditActionView         AuditAction = "VIEW"
	AuditActionCopy         AuditAction = "COPY"
	AuditActionEdit         AuditAction = "EDIT"
	AuditActionDelete       AuditAction = "DELETE"
	AuditActionCreate       AuditAction = "CREATE"
	AuditActionLogin        AuditAction = "LOGIN"
	AuditActionLogout       AuditAction = "LOGOUT"
	AuditActionAccessDenied AuditAction = "ACCESS_DENIED"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionView, AuditActionCopy, AuditActionEdit, AuditActionDelete,
		AuditActionCreate, AuditActionLogin, AuditActionLogout, AuditActionAccessDenied:
		return true
	}
	return false
}

// AuditEntry is one immutable row of credential_audit. UserEmail and ClientName are
// joined on read and never written.
type AuditEntry struct {
	AuditID      int64       `db:"audit_id" json:"audit_id"`
	CredentialID *int64      `db:"credential_id" json:"credential_id,omitempty"`
	ClientID     *int64      `db:"client_id" json:"client_id,omitempty"`
	UserID       *int64      `db:"user_id" json:"user_id,omitempty"`
	Action       AuditAction `db:"action" json:"action"`
	FieldCopied  *string     `db:"field_copied" json:"field_copied,omitempty"`
	IPAddress    *string     `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string     `db:"user_agent" json:"user_agent,omitempty"`
	Timestamp    time.Time   `db:"timestamp" json:"timestamp"`
	UserEmail    *string     `db:"user_email" json:"user_email,omitempty"`
	ClientName   *string     `db:"client_name" json:"client_name,omitempty"`
}

// RecordContext carries the optional references of a record call.
type RecordContext struct {
	CredentialID *int64
	ClientID     *int64
	FieldCopied  string
	Details      string
}

// AuditFilter narrows audit exports.
type AuditFilter struct {
	Action   *AuditAction
	ClientID *int64
	UserID   *int64
	From     *time.Time
	To       *time.Time
	Limit    int
}

// ExportFormat selects the audit export renderer.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
