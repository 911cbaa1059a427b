package services

import (
	"errors"
	"fmt"

	"github.com/codefix/backend/internal/domain"
)

// Task errors
var (
	ErrTaskNotFound   = errors.New("task: not found")
	ErrInvalidState   = errors.New("task: invalid state for operation")
	ErrTaskInvalidInput = errors.New("task: invalid input")
)

// StageError wraps a stage collaborator failure with the stage that raised
// it. It is recorded as the task's terminal error and never escapes Run.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError converts a runner error into the typed form, leaving
// already-typed errors untouched.
func NewStageError(stage domain.Stage, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Err: err}
}
