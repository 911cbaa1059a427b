package ports

import (
	"context"
	"io"
	"time"

	"github.com/codefix/backend/internal/domain"
)

// StageContext carries the accumulated pipeline state from one stage to the
// next. Each runner reads what earlier stages produced and writes its own
// output back before returning.
type StageContext struct {
	TaskID   string
	FileName string
	FilePath string
	Options  domain.JSONB

	OriginalContent string

	ArchitectReport  string
	ReviewerReport   string
	FixedContent     string
	OptimizerSummary string
	QualityScore     float64

	SavedFilePath string
	DiffStats     domain.JSONB
}

// StageResult is what a runner reports for the stage it just finished.
// Metrics are free-form and end up in the stage-completed broadcast payload.
type StageResult struct {
	Report  string
	Metrics domain.JSONB
}

// StageRunner executes one analysis stage. Implementations are external
// collaborators (LLM calls, file writes); the orchestrator only sees this
// contract.
type StageRunner interface {
	Run(ctx context.Context, sc *StageContext) (*StageResult, error)
}

// Orchestrator drives a task through the fixed stage sequence.
type Orchestrator interface {
	// Start validates the task is startable and spawns Run in the background.
	Start(ctx context.Context, taskID string) error
	// Run executes the pipeline synchronously. Stage failures are absorbed
	// into the task's terminal state; only ErrTaskNotFound/ErrInvalidState
	// escape.
	Run(ctx context.Context, taskID string) error
}

// SendFunc delivers one message to a single subscriber. A non-nil error
// marks the subscriber dead.
type SendFunc func(msg domain.ProgressMessage) error

// ProgressBroker fans progress events out to every live subscriber of a
// task and owns the subscriber registry.
type ProgressBroker interface {
	Register(taskID, clientID string, send SendFunc)
	Unregister(taskID, clientID string)
	Broadcast(taskID string, msg domain.ProgressMessage)
	// Touch refreshes a subscriber's last-active timestamp (heartbeat).
	Touch(taskID, clientID string)
	// EvictIdle removes subscribers idle longer than timeout and returns
	// how many were removed.
	EvictIdle(timeout time.Duration) int
	TaskClients(taskID string) []string
	TotalConnections() int
}

// FileStore owns the upload and fixed-output directories.
type FileStore interface {
	SaveUpload(taskID, fileName string, src io.Reader) (path string, size int64, err error)
	ReadFile(path string) (string, error)
	SaveFixed(taskID, fileName, content string) (path string, err error)
}
