package error

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Stage names the step of a governance operation that failed.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageBackup      Stage = "backup"
	StagePersistence Stage = "persistence"
	StageLoad        Stage = "load"
	StageBackend     Stage = "backend"
	StageListener    Stage = "listener"
)

// StageError reports which stage of an operation failed. Details carries
// stage-specific data, e.g. the validation issues that rejected an update.
type StageError struct {
	Stage   Stage
	Op      string
	Message string
	Details any
	Err     error
}

func NewStageError(stage Stage, op string, err error) *StageError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &StageError{Stage: stage, Op: op, Message: msg, Err: err}
}

func (e *StageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failed: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Op, e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) ErrCode() string {
	return "CACHE_" + strings.ToUpper(string(e.Stage)) + "_ERROR"
}

func (e *StageError) StatusCode() int {
	switch e.Stage {
	case StageValidation:
		return http.StatusBadRequest
	case StageBackend:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// IsStage reports whether err is a StageError for the given stage.
func IsStage(err error, stage Stage) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}
