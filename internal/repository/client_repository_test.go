package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

var clientRowColumns = []string{"client_id", "client_code", "client_name", "industry", "division", "contact_person", "contact_email", "notes", "status", "is_active", "created_at", "updated_at"}

func TestSearchByNameOrCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("(c.client_name ILIKE $1 OR c.client_code ILIKE $1)")).
		WithArgs("%acme%").
		WillReturnRows(sqlmock.NewRows(clientRowColumns).AddRow(3, "ACM", "Acme Bank", "Banking", nil, nil, nil, nil, "ACTIVE", true, now, now))

	client, err := repo.SearchByNameOrCode(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Bank", client.ClientName)
	assert.Equal(t, "Banking", *client.Industry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByAccessNoMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(v.username ILIKE $1 OR s.host ILIKE $1 OR s.ip_address ILIKE $1)")).
		WithArgs("%10.0.0.5%").
		WillReturnRows(sqlmock.NewRows(clientRowColumns))

	_, err := repo.SearchByAccess(context.Background(), "10.0.0.5")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCredentialsForSystems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM credential_vault WHERE system_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"credential_id", "system_id", "credential_type", "username", "password_value", "notes", "expiry_date", "created_by", "created_at", "updated_at"}).
			AddRow(11, 4, "SSH", "root", "s3cret", nil, nil, "ada@ibs.test", now, now))

	creds, err := repo.CredentialsForSystems(context.Background(), []int64{4, 5})
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "root", *creds[0].Username)

	empty, err := repo.CredentialsForSystems(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCredentialWithClient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("JOIN client_systems s ON s.system_id = v.system_id")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"credential_id", "system_id", "credential_type", "username", "password_value", "notes", "expiry_date", "created_by", "created_at", "updated_at", "client_id"}).
			AddRow(11, 4, nil, "root", "s3cret", nil, nil, nil, now, now, 3))

	cred, clientID, err := repo.FindCredential(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), cred.CredentialID)
	assert.Equal(t, int64(3), clientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndDeleteCredential(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO credential_vault")).
		WillReturnRows(sqlmock.NewRows([]string{"credential_id", "created_at", "updated_at"}).AddRow(12, now, now))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credential_vault WHERE credential_id = $1")).
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credential_vault WHERE credential_id = $1")).
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cred := &models.Credential{SystemID: 4, PasswordValue: "pw"}
	require.NoError(t, repo.CreateCredential(context.Background(), cred))
	assert.Equal(t, int64(12), cred.CredentialID)

	require.NoError(t, repo.DeleteCredential(context.Background(), 12))
	assert.True(t, errors.Is(repo.DeleteCredential(context.Background(), 12), sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
