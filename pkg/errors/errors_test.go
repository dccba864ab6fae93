package errors

import (
	"database/sql"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestCloneMatchesSource(t *testing.T) {
	cloned := Clone(ErrValidation, "title is required")
	assert.True(t, stdErrors.Is(cloned, ErrValidation))
	assert.False(t, stdErrors.Is(cloned, ErrNotFound))
	assert.Equal(t, "title is required", cloned.Message)
	assert.Equal(t, "validation failed", ErrValidation.Message)
}

func TestPersistenceKeepsCause(t *testing.T) {
	err := Persistence(sql.ErrConnDone, "failed to insert audit entry")
	assert.True(t, stdErrors.Is(err, sql.ErrConnDone))
	assert.True(t, stdErrors.Is(err, ErrPersistence))
	assert.Equal(t, http.StatusInternalServerError, FromError(err).Status)
}
