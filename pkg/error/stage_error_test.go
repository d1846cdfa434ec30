package error

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStageError(StagePersistence, "SaveConfig", cause)

	assert.Equal(t, "SaveConfig: persistence failed: disk full", err.Error())
	assert.Equal(t, "CACHE_PERSISTENCE_ERROR", err.ErrCode())
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsStage(wrapped, StagePersistence))
	assert.False(t, IsStage(wrapped, StageValidation))

	var generic GenericError = err
	assert.NotNil(t, generic)
	assert.Equal(t, http.StatusBadRequest, NewStageError(StageValidation, "", nil).StatusCode())
}
