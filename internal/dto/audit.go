package dto

import "github.com/noah-isme/ibs-portal-api/internal/models"

// RecordAuditRequest captures POST /audit. The acting user is taken from the token.
type RecordAuditRequest struct {
	Action       models.AuditAction `json:"action" binding:"required"`
	CredentialID *int64             `json:"credential_id"`
	ClientID     *int64             `json:"client_id"`
	FieldCopied  string             `json:"field_copied" binding:"max=100"`
	Details      string             `json:"details" binding:"max=1000"`
}

// RecordContext maps the payload onto the recorder's optional references.
func (r RecordAuditRequest) RecordContext() models.RecordContext {
	return models.RecordContext{
		CredentialID: r.CredentialID,
		ClientID:     r.ClientID,
		FieldCopied:  r.FieldCopied,
		Details:      r.Details,
	}
}
