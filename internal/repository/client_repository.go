package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

const (
	clientColumns     = `c.client_id, c.client_code, c.client_name, c.industry, c.division, c.contact_person, c.contact_email, c.notes, c.status, c.is_active, c.created_at, c.updated_at`
	credentialColumns = `credential_id, system_id, credential_type, username, password_value, notes, expiry_date, created_by, created_at, updated_at`
)

// ClientRepository reads clients with their systems and manages the credential vault.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository constructs the repository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// SearchByNameOrCode returns the first active client whose name or code contains term.
func (r *ClientRepository) SearchByNameOrCode(ctx context.Context, term string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients c
WHERE c.is_active = TRUE AND (c.client_name ILIKE $1 OR c.client_code ILIKE $1)
ORDER BY c.client_name ASC LIMIT 1`
	return r.getClient(ctx, "search clients", query, likePattern(term))
}

// SearchByAccess returns the first active client owning a credential username, host or IP
// that contains term.
func (r *ClientRepository) SearchByAccess(ctx context.Context, term string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients c
WHERE c.is_active = TRUE AND EXISTS (
	SELECT 1 FROM client_systems s
	LEFT JOIN credential_vault v ON v.system_id = s.system_id
	WHERE s.client_id = c.client_id
		AND (v.username ILIKE $1 OR s.host ILIKE $1 OR s.ip_address ILIKE $1)
)
ORDER BY c.client_name ASC LIMIT 1`
	return r.getClient(ctx, "search clients by access", query, likePattern(term))
}

// FindByID loads one client.
func (r *ClientRepository) FindByID(ctx context.Context, id int64) (*models.Client, error) {
	return r.getClient(ctx, "find client", `SELECT `+clientColumns+` FROM clients c WHERE c.client_id = $1`, id)
}

func (r *ClientRepository) getClient(ctx context.Context, op, query string, args ...interface{}) (*models.Client, error) {
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &client, nil
}

// List returns every client ordered by name.
func (r *ClientRepository) List(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, `SELECT `+clientColumns+` FROM clients c ORDER BY c.client_name ASC`); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// SystemsForClient returns a client's active systems with their type name.
func (r *ClientRepository) SystemsForClient(ctx context.Context, clientID int64) ([]models.ClientSystem, error) {
	const query = `SELECT s.system_id, s.client_id, s.system_type_id, t.system_type_name, s.system_name, s.environment, s.host, s.ip_address, s.description, s.is_active, s.created_at, s.updated_at
FROM client_systems s
LEFT JOIN system_types t ON t.system_type_id = s.system_type_id
WHERE s.client_id = $1 AND s.is_active = TRUE
ORDER BY s.environment ASC, s.system_name ASC`
	var systems []models.ClientSystem
	if err := r.db.SelectContext(ctx, &systems, query, clientID); err != nil {
		return nil, fmt.Errorf("list client systems: %w", err)
	}
	return systems, nil
}

// CredentialsForSystems returns the credentials of the given systems.
func (r *ClientRepository) CredentialsForSystems(ctx context.Context, systemIDs []int64) ([]models.Credential, error) {
	if len(systemIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + credentialColumns + ` FROM credential_vault WHERE system_id = ANY($1) ORDER BY system_id ASC, credential_id ASC`
	var creds []models.Credential
	if err := r.db.SelectContext(ctx, &creds, query, pq.Array(systemIDs)); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// SystemClientID returns the owning client of a system.
func (r *ClientRepository) SystemClientID(ctx context.Context, systemID int64) (int64, error) {
	var clientID int64
	if err := r.db.GetContext(ctx, &clientID, `SELECT client_id FROM client_systems WHERE system_id = $1`, systemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("find system client: %w", err)
	}
	return clientID, nil
}

// FindCredential loads a credential together with its owning client id.
func (r *ClientRepository) FindCredential(ctx context.Context, id int64) (*models.Credential, int64, error) {
	var row struct {
		models.Credential
		ClientID int64 `db:"client_id"`
	}
	const query = `SELECT v.credential_id, v.system_id, v.credential_type, v.username, v.password_value, v.notes, v.expiry_date, v.created_by, v.created_at, v.updated_at, s.client_id
FROM credential_vault v
JOIN client_systems s ON s.system_id = v.system_id
WHERE v.credential_id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("find credential: %w", err)
	}
	return &row.Credential, row.ClientID, nil
}

// CreateCredential stores a credential and fills in its identity.
func (r *ClientRepository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	const query = `INSERT INTO credential_vault (system_id, credential_type, username, password_value, notes, expiry_date, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING credential_id, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, cred.SystemID, cred.CredentialType, cred.Username, cred.PasswordValue, cred.Notes, cred.ExpiryDate, cred.CreatedBy)
	if err := row.Scan(&cred.CredentialID, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// UpdateCredential overwrites the writable columns of a credential.
func (r *ClientRepository) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	cred.UpdatedAt = time.Now().UTC()
	const query = `UPDATE credential_vault SET credential_type = :credential_type, username = :username, password_value = :password_value,
	notes = :notes, expiry_date = :expiry_date, updated_at = :updated_at WHERE credential_id = :credential_id`
	res, err := r.db.NamedExecContext(ctx, query, cred)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCredential removes a credential from the vault.
func (r *ClientRepository) DeleteCredential(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credential_vault WHERE credential_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func likePattern(term string) string {
	return "%" + term + "%"
}
