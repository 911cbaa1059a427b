package ports

import (
	"context"

	"github.com/codefix/backend/internal/domain"
)

// CreateTaskInput is what the upload handler knows at task-creation time.
type CreateTaskInput struct {
	FileName string
	FilePath string
	FileSize int64
	Options  domain.JSONB
}

// Outcome is a task's terminal write. Exactly one of Result/Error is set.
type Outcome struct {
	Status domain.TaskStatus
	Result *domain.ReviewResult
	Error  string
}

// CompletedOutcome builds the terminal write for a successful run.
func CompletedOutcome(result *domain.ReviewResult) Outcome {
	return Outcome{Status: domain.TaskStatusCompleted, Result: result}
}

// FailedOutcome builds the terminal write for a failed run.
func FailedOutcome(errMsg string) Outcome {
	return Outcome{Status: domain.TaskStatusFailed, Error: errMsg}
}

// TaskStore is the single source of truth for task records. All state
// transitions pass through it; every mutation recomputes overall progress
// and bumps updated_at.
type TaskStore interface {
	Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, limit, offset int) ([]domain.Task, error)
	Count(ctx context.Context) (int, error)

	// Start transitions pending -> running atomically. ErrInvalidState if
	// the task is not pending; exactly one concurrent caller wins.
	Start(ctx context.Context, id string) error

	// UpdateStage records one stage transition. Terminal tasks absorb late
	// updates as a silent no-op.
	UpdateStage(ctx context.Context, id string, stage domain.Stage, status domain.StageStatus, message string, progress int) error

	// Finalize writes the terminal outcome. Idempotent; first call wins.
	Finalize(ctx context.Context, id string, outcome Outcome) error

	// CleanupOldTasks evicts oldest-first beyond the keep bound and returns
	// how many were removed.
	CleanupOldTasks(ctx context.Context, keep int) (int, error)
}
