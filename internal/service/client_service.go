package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type clientRepository interface {
	SearchByNameOrCode(ctx context.Context, term string) (*models.Client, error)
	SearchByAccess(ctx context.Context, term string) (*models.Client, error)
	FindByID(ctx context.Context, id int64) (*models.Client, error)
	List(ctx context.Context) ([]models.Client, error)
	SystemsForClient(ctx context.Context, clientID int64) ([]models.ClientSystem, error)
	CredentialsForSystems(ctx context.Context, systemIDs []int64) ([]models.Credential, error)
	SystemClientID(ctx context.Context, systemID int64) (int64, error)
	FindCredential(ctx context.Context, id int64) (*models.Credential, int64, error)
	CreateCredential(ctx context.Context, cred *models.Credential) error
	UpdateCredential(ctx context.Context, cred *models.Credential) error
	DeleteCredential(ctx context.Context, id int64) error
}

type alertSink interface {
	Dispatch(alert models.NotifyRequest)
}

// ClientService serves client lookups and credential maintenance. Every read of credentials
// records VIEW and every change records the matching action.
type ClientService struct {
	repo      clientRepository
	audit     auditRecorder
	alerts    alertSink
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClientService constructs the service. alerts may be nil.
func NewClientService(repo clientRepository, audit auditRecorder, alerts alertSink, validate *validator.Validate, logger *zap.Logger) *ClientService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClientService{repo: repo, audit: audit, alerts: alerts, validator: validate, logger: logger}
}

// Search finds the first client whose name or code matches term, falling back to a match on
// credential username, host or IP. The result includes systems and credentials.
func (s *ClientService) Search(ctx context.Context, session models.Session, term string) (*models.ClientWithSystems, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "search term is required")
	}

	client, err := s.repo.SearchByNameOrCode(ctx, term)
	if errors.Is(err, sql.ErrNoRows) {
		client, err = s.repo.SearchByAccess(ctx, term)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no client matches the search")
		}
		return nil, appErrors.Persistence(err, "failed to search clients")
	}

	return s.detail(ctx, session, client)
}

// List returns every client without credentials.
func (s *ClientService) List(ctx context.Context) ([]models.Client, error) {
	clients, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list clients")
	}
	if clients == nil {
		clients = []models.Client{}
	}
	return clients, nil
}

// Get returns one client with systems and credentials.
func (s *ClientService) Get(ctx context.Context, session models.Session, id int64) (*models.ClientWithSystems, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Persistence(err, "failed to load client")
	}
	return s.detail(ctx, session, client)
}

func (s *ClientService) detail(ctx context.Context, session models.Session, client *models.Client) (*models.ClientWithSystems, error) {
	systems, err := s.repo.SystemsForClient(ctx, client.ClientID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load client systems")
	}

	ids := make([]int64, len(systems))
	for i, sys := range systems {
		ids[i] = sys.SystemID
	}
	creds, err := s.repo.CredentialsForSystems(ctx, ids)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load credentials")
	}

	bySystem := make(map[int64][]models.Credential, len(systems))
	for _, cred := range creds {
		bySystem[cred.SystemID] = append(bySystem[cred.SystemID], cred)
	}

	out := &models.ClientWithSystems{Client: *client, Systems: make([]models.SystemWithCredentials, 0, len(systems))}
	for _, sys := range systems {
		list := bySystem[sys.SystemID]
		if list == nil {
			list = []models.Credential{}
		}
		out.Systems = append(out.Systems, models.SystemWithCredentials{ClientSystem: sys, Credentials: list})
	}

	clientID := client.ClientID
	if _, err := s.audit.Record(ctx, session, models.AuditActionView, models.RecordContext{ClientID: &clientID}); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCredential stores a credential under one of the client's systems and records CREATE.
func (s *ClientService) CreateCredential(ctx context.Context, session models.Session, clientID int64, input models.CredentialInput) (*models.Credential, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Validation(err, "invalid credential payload")
	}
	owner, err := s.repo.SystemClientID(ctx, input.SystemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "system not found")
		}
		return nil, appErrors.Persistence(err, "failed to load system")
	}
	if owner != clientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "system does not belong to client")
	}

	cred := &models.Credential{SystemID: input.SystemID}
	applyCredentialInput(cred, input)
	createdBy := fmt.Sprintf("%d", session.UserID)
	cred.CreatedBy = &createdBy
	if err := s.repo.CreateCredential(ctx, cred); err != nil {
		return nil, appErrors.Persistence(err, "failed to create credential")
	}

	credID := cred.CredentialID
	if _, err := s.audit.Record(ctx, session, models.AuditActionCreate, models.RecordContext{CredentialID: &credID, ClientID: &clientID}); err != nil {
		return nil, err
	}
	return cred, nil
}

// UpdateCredential overwrites a credential's writable fields and records EDIT. The system
// cannot be changed.
func (s *ClientService) UpdateCredential(ctx context.Context, session models.Session, id int64, input models.CredentialInput) (*models.Credential, error) {
	cred, clientID, err := s.findCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.SystemID == 0 {
		input.SystemID = cred.SystemID
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Validation(err, "invalid credential payload")
	}
	if input.SystemID != cred.SystemID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credential cannot move between systems")
	}

	applyCredentialInput(cred, input)
	if err := s.repo.UpdateCredential(ctx, cred); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return nil, appErrors.Persistence(err, "failed to update credential")
	}

	if _, err := s.audit.Record(ctx, session, models.AuditActionEdit, models.RecordContext{CredentialID: &id, ClientID: &clientID}); err != nil {
		return nil, err
	}
	return cred, nil
}

// DeleteCredential removes a credential, records DELETE and alerts the admins.
func (s *ClientService) DeleteCredential(ctx context.Context, session models.Session, id int64) error {
	cred, clientID, err := s.findCredential(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCredential(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return appErrors.Persistence(err, "failed to delete credential")
	}

	// The credential row is gone; the audit keeps only the client reference.
	if _, err := s.audit.Record(ctx, session, models.AuditActionDelete, models.RecordContext{ClientID: &clientID, Details: fmt.Sprintf("credential %d deleted", id)}); err != nil {
		return err
	}

	if s.alerts != nil {
		label := "credential"
		if cred.Username != nil && *cred.Username != "" {
			label = *cred.Username
		}
		ref := clientID
		s.alerts.Dispatch(models.NotifyRequest{
			Type:          models.NotificationDelete,
			Title:         "Credential deleted",
			Message:       fmt.Sprintf("User %d deleted %s (credential %d)", session.UserID, label, id),
			ReferenceType: "client",
			ReferenceID:   &ref,
		})
	}
	return nil
}

func (s *ClientService) findCredential(ctx context.Context, id int64) (*models.Credential, int64, error) {
	cred, clientID, err := s.repo.FindCredential(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return nil, 0, appErrors.Persistence(err, "failed to load credential")
	}
	return cred, clientID, nil
}

func applyCredentialInput(cred *models.Credential, input models.CredentialInput) {
	cred.CredentialType = optionalString(input.CredentialType)
	cred.Username = optionalString(input.Username)
	cred.PasswordValue = input.PasswordValue
	cred.Notes = optionalString(input.Notes)
	cred.ExpiryDate = input.ExpiryDate
}
