package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("assign slot: %w", Clone(ErrOutOfRange, "dayIndex 9 outside 1..5"))

	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, "RANGE_ERROR", appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "dayIndex 9 outside 1..5", appErr.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := WithDetails(ErrTeacherUnavailable, "", map[string]int{"dayIndex": 1})
	assert.True(t, stdErrors.Is(err, ErrTeacherUnavailable))
	assert.False(t, stdErrors.Is(err, ErrConflict))
	assert.Equal(t, ErrTeacherUnavailable.Message, err.Message)
	assert.NotNil(t, err.Details)
	assert.Nil(t, ErrTeacherUnavailable.Details)
}
