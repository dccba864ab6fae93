package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

type mockAuditRepo struct {
	entries    []models.AuditEntry
	insertErr  error
	listErr    error
	listCalls  int
	lastLimit  int
	lastFilter models.AuditFilter
}

func (m *mockAuditRepo) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	entry.AuditID = int64(len(m.entries) + 1)
	entry.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditRepo) FindByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	for _, e := range m.entries {
		if e.AuditID == id {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuditRepo) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	m.listCalls++
	m.lastLimit = limit
	return m.entries, m.listErr
}

func (m *mockAuditRepo) ListByClient(ctx context.Context, clientID int64, limit int) ([]models.AuditEntry, error) {
	m.listCalls++
	m.lastLimit = limit
	var out []models.AuditEntry
	for _, e := range m.entries {
		if e.ClientID != nil && *e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, m.listErr
}

func (m *mockAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	m.lastFilter = filter
	return m.entries, m.listErr
}

type fakeClipboard struct {
	err     error
	content string
	writes  int
}

func (f *fakeClipboard) WriteAll(text string) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	f.content = text
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func newAuditService(repo *mockAuditRepo, cache *CacheService) *AuditService {
	return NewAuditService(repo, cache, NewMetricsService(), nil, AuditConfig{})
}

func TestRecordCopyRoundTrip(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	session := models.Session{UserID: 7, IPAddress: "10.1.1.1", UserAgent: "ext/1.0"}

	entry, err := svc.Record(context.Background(), session, models.AuditActionCopy, models.RecordContext{
		CredentialID: int64Ptr(11),
		ClientID:     int64Ptr(3),
		FieldCopied:  "Password",
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	stored := repo.entries[0]
	assert.NotZero(t, stored.AuditID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, models.AuditActionCopy, stored.Action)
	assert.Equal(t, "Password", *stored.FieldCopied)
	assert.Equal(t, int64(11), *stored.CredentialID)
	assert.Equal(t, int64(3), *stored.ClientID)
	assert.Equal(t, int64(7), *stored.UserID)
	assert.Equal(t, "ext/1.0", *stored.UserAgent)
	assert.Equal(t, "10.1.1.1", *stored.IPAddress)
	assert.Equal(t, stored, *entry)
}

func TestRecordFieldCopiedOnlyForCopy(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	ctx := context.Background()

	copyEntry, err := svc.Record(ctx, models.Session{UserID: 7}, models.AuditActionCopy, models.RecordContext{CredentialID: int64Ptr(11)})
	require.NoError(t, err)
	assert.Nil(t, copyEntry.FieldCopied)

	_, err = svc.Record(ctx, models.Session{UserID: 7}, models.AuditActionView, models.RecordContext{FieldCopied: "Password"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	entry, err := svc.Record(ctx, models.Session{UserID: 7}, models.AuditActionEdit, models.RecordContext{Details: "rotated password"})
	require.NoError(t, err)
	assert.Nil(t, entry.FieldCopied)
	assert.Len(t, repo.entries, 2)
}

func TestAuditGet(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	ctx := context.Background()

	recorded, err := svc.Record(ctx, models.Session{UserID: 7}, models.AuditActionView, models.RecordContext{ClientID: int64Ptr(3)})
	require.NoError(t, err)

	got, err := svc.Get(ctx, recorded.AuditID)
	require.NoError(t, err)
	assert.Equal(t, *recorded, *got)

	_, err = svc.Get(ctx, 999)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	repo.listErr = errors.New("connection reset")
	_, err = svc.Get(ctx, recorded.AuditID)
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	_, err := svc.Record(context.Background(), models.Session{UserID: 1}, models.AuditAction("PRINT"), models.RecordContext{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.entries)
}

func TestRecordPersistenceFailurePropagates(t *testing.T) {
	storeErr := errors.New("disk full")
	repo := &mockAuditRepo{insertErr: storeErr}
	svc := newAuditService(repo, nil)

	_, err := svc.Record(context.Background(), models.Session{UserID: 1}, models.AuditActionDelete, models.RecordContext{CredentialID: int64Ptr(4)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
	assert.True(t, errors.Is(err, storeErr))
}

func TestRecordInvalidatesAuditCache(t *testing.T) {
	repo := &mockAuditRepo{}
	cacheRepo := newMockCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := newAuditService(repo, cache)
	ctx := context.Background()

	_, err := svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	_, err = svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Record(ctx, models.Session{UserID: 1}, models.AuditActionView, models.RecordContext{ClientID: int64Ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"audit:*"}, cacheRepo.invalidated)

	_, err = svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCopyWithAuditSuccess(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	clip := &fakeClipboard{}

	entry, err := svc.CopyWithAudit(context.Background(), clip, models.Session{UserID: 7}, "s3cret", int64Ptr(11), int64Ptr(3), "Password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", clip.content)
	assert.Equal(t, models.AuditActionCopy, entry.Action)
	assert.Len(t, repo.entries, 1)
}

func TestCopyWithAuditClipboardFailureWritesNothing(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	clip := &fakeClipboard{err: errors.New("no display")}

	_, err := svc.CopyWithAudit(context.Background(), clip, models.Session{UserID: 7}, "s3cret", int64Ptr(11), int64Ptr(3), "Password")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrClipboard))
	assert.Empty(t, repo.entries)
}

func TestCopyWithAuditAuditFailureIsFailure(t *testing.T) {
	repo := &mockAuditRepo{insertErr: errors.New("timeout")}
	svc := newAuditService(repo, nil)
	clip := &fakeClipboard{}

	_, err := svc.CopyWithAudit(context.Background(), clip, models.Session{UserID: 7}, "s3cret", int64Ptr(11), nil, "Username")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCopyAuditFailed))
	assert.Equal(t, "s3cret", clip.content)
}

func TestCopyWithAuditRequiresFieldName(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	clip := &fakeClipboard{}

	_, err := svc.CopyWithAudit(context.Background(), clip, models.Session{UserID: 7}, "x", nil, nil, " ")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, clip.writes)
}

func TestListRecentClampsLimit(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)

	entries, err := svc.ListRecent(context.Background(), 5000)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Equal(t, 200, repo.lastLimit)

	_, err = svc.ListRecent(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)
}

func TestListByClientUsesClientLimit(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)
	_, err := svc.Record(context.Background(), models.Session{UserID: 1}, models.AuditActionView, models.RecordContext{ClientID: int64Ptr(3)})
	require.NoError(t, err)

	entries, err := svc.ListByClient(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 100, repo.lastLimit)

	repo.listErr = errors.New("down")
	_, err = svc.ListByClient(context.Background(), 4)
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
}

func TestExportCSV(t *testing.T) {
	email := "ada@ibs.test"
	field := "Password"
	repo := &mockAuditRepo{entries: []models.AuditEntry{{
		AuditID:     1,
		UserID:      int64Ptr(7),
		UserEmail:   &email,
		Action:      models.AuditActionCopy,
		FieldCopied: &field,
		Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}}
	svc := newAuditService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	file, err := svc.Export(context.Background(), models.AuditFilter{}, models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "audit-20260302-100000.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.Contains(string(file.Body), "2026-03-01T09:00:00Z,ada@ibs.test,COPY,,,Password,,"))
	assert.Equal(t, maxExportRows, repo.lastFilter.Limit)
}

func TestExportPDFAndValidation(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newAuditService(repo, nil)

	file, err := svc.Export(context.Background(), models.AuditFilter{}, models.ExportFormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF-")))

	_, err = svc.Export(context.Background(), models.AuditFilter{}, models.ExportFormat("xlsx"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.Export(context.Background(), models.AuditFilter{From: &from, To: &to}, models.ExportFormatCSV)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
