package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	t := Table{Title: "Audit trail", Columns: []string{"When", "User", "Action", "Field"}}
	t.AddRow("2026-01-01T00:00:00Z", "ana@ibs.test", "COPY", "password")
	t.AddRow("2026-01-01T00:05:00Z", "=cmd()", "VIEW")
	return t
}

func TestCSVRenderer(t *testing.T) {
	out, err := NewCSVRenderer().Render(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "When,User,Action,Field\n2026-01-01T00:00:00Z,ana@ibs.test,COPY,password\n2026-01-01T00:05:00Z,'=cmd(),VIEW,\n", string(out))
}

func TestRenderersRequireColumns(t *testing.T) {
	_, err := NewCSVRenderer().Render(Table{})
	assert.Error(t, err)
	_, err = NewPDFRenderer().Render(Table{})
	assert.Error(t, err)
}

func TestPDFRenderer(t *testing.T) {
	r := NewPDFRenderer()
	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	out, err := r.Render(sampleTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", r.ContentType())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
