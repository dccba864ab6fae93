package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

const userAgent = "ibsctl"

type userFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.WebUser, error)
}

type principalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error)
}

type credentialFinder interface {
	FindCredential(ctx context.Context, id int64) (*models.Credential, int64, error)
}

type copyAuditor interface {
	Record(ctx context.Context, session models.Session, action models.AuditAction, rc models.RecordContext) (*models.AuditEntry, error)
	CopyWithAudit(ctx context.Context, clipboard service.Clipboard, session models.Session, text string, credentialID, clientID *int64, fieldName string) (*models.AuditEntry, error)
}

// copier puts one credential field on the clipboard on behalf of a user.
type copier struct {
	users       userFinder
	principals  principalLoader
	policy      *service.AccessPolicy
	credentials credentialFinder
	audit       copyAuditor
	clipboard   service.Clipboard
}

func (c *copier) run(ctx context.Context, email string, credentialID int64, field string) (*models.AuditEntry, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field != "password" && field != "username" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field must be password or username")
	}
	if credentialID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credential id is required")
	}

	user, err := c.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Persistence(err, "failed to load user")
	}
	session := models.Session{UserID: user.UserID, UserAgent: userAgent}

	// An unreadable profile resolves to the all-false capability set.
	principal, err := c.principals.LoadPrincipal(ctx, user.UserID)
	if err != nil {
		principal = nil
	}
	caps := c.policy.ResolvePrincipal(principal)
	if !caps.CanCopy {
		id := credentialID
		if _, auditErr := c.audit.Record(ctx, session, models.AuditActionAccessDenied, models.RecordContext{
			CredentialID: &id,
			Details:      "missing copy on ibsctl copy",
		}); auditErr != nil {
			return nil, fmt.Errorf("%w (access denied audit failed: %v)", appErrors.ErrForbidden, auditErr)
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "copy is not allowed for this user")
	}

	cred, clientID, err := c.credentials.FindCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return nil, appErrors.Persistence(err, "failed to load credential")
	}

	text := cred.PasswordValue
	if field == "username" {
		if cred.Username == nil || *cred.Username == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "credential has no username")
		}
		text = *cred.Username
	}
	return c.audit.CopyWithAudit(ctx, c.clipboard, session, text, &cred.CredentialID, &clientID, field)
}
