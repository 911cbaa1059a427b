package services

import (
	"context"
	"fmt"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

type OrchestratorConfig struct {
	Store   ports.TaskStore
	Broker  ports.ProgressBroker
	Files   ports.FileStore
	Runners map[domain.Stage]ports.StageRunner
	Logger  *logger.Logger
}

// TaskOrchestrator drives one task at a time through the fixed pipeline.
// Stages run strictly in order because each consumes the previous stage's
// output; independent tasks run fully in parallel, one goroutine each.
type TaskOrchestrator struct {
	store   ports.TaskStore
	broker  ports.ProgressBroker
	files   ports.FileStore
	runners map[domain.Stage]ports.StageRunner
	logger  *logger.Logger
}

func NewTaskOrchestrator(cfg OrchestratorConfig) (*TaskOrchestrator, error) {
	for _, stage := range domain.Stages() {
		if cfg.Runners[stage] == nil {
			return nil, fmt.Errorf("orchestrator: missing runner for stage %s", stage)
		}
	}
	return &TaskOrchestrator{
		store:   cfg.Store,
		broker:  cfg.Broker,
		files:   cfg.Files,
		runners: cfg.Runners,
		logger:  cfg.Logger,
	}, nil
}

var _ ports.Orchestrator = (*TaskOrchestrator)(nil)

// Start claims the task and runs the pipeline on its own goroutine. The
// claim happens synchronously so a double start is reported to the caller.
func (o *TaskOrchestrator) Start(ctx context.Context, taskID string) error {
	if err := o.store.Start(ctx, taskID); err != nil {
		return err
	}

	go func() {
		// Detached from the request context; a started task runs to
		// completion or failure.
		if err := o.run(context.Background(), taskID); err != nil {
			o.logger.Errorw("orchestrator_run_failed", "task_id", taskID, "error", err)
		}
	}()
	return nil
}

// Run claims the task and executes the pipeline synchronously. Stage
// failures end up in the task's terminal state, not in the return value.
func (o *TaskOrchestrator) Run(ctx context.Context, taskID string) error {
	if err := o.store.Start(ctx, taskID); err != nil {
		return err
	}
	return o.run(ctx, taskID)
}

func (o *TaskOrchestrator) run(ctx context.Context, taskID string) error {
	task, err := o.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	original, err := o.files.ReadFile(task.FilePath)
	if err != nil {
		o.logger.Errorw("orchestrator_read_source_failed", "task_id", taskID, "path", task.FilePath, "error", err)
		o.fail(ctx, taskID, domain.StageArchitect, fmt.Errorf("read source file: %w", err))
		return nil
	}

	sc := &ports.StageContext{
		TaskID:          taskID,
		FileName:        task.FileName,
		FilePath:        task.FilePath,
		Options:         task.Options,
		OriginalContent: original,
	}

	for _, stage := range domain.Stages() {
		o.logger.Infow("orchestrator_stage_start", "task_id", taskID, "stage", stage)
		o.setStage(ctx, taskID, stage, domain.StageStatusRunning, stageStartMessage(stage), 0, nil)

		result, err := o.invoke(ctx, stage, sc)
		if err != nil {
			o.fail(ctx, taskID, stage, err)
			return nil
		}

		var payload domain.JSONB
		if result != nil && (result.Report != "" || result.Metrics != nil) {
			payload = domain.JSONB{"report": result.Report}
			for k, v := range result.Metrics {
				payload[k] = v
			}
		}
		o.setStage(ctx, taskID, stage, domain.StageStatusCompleted, stageDoneMessage(stage), 100, payload)
		o.logger.Infow("orchestrator_stage_done", "task_id", taskID, "stage", stage)
	}

	review := &domain.ReviewResult{
		OriginalContent:  sc.OriginalContent,
		FixedContent:     sc.FixedContent,
		ArchitectReport:  sc.ArchitectReport,
		ReviewerReport:   sc.ReviewerReport,
		OptimizerSummary: sc.OptimizerSummary,
		QualityScore:     sc.QualityScore,
		SavedFilePath:    sc.SavedFilePath,
		DiffStats:        sc.DiffStats,
	}

	if err := o.store.Finalize(ctx, taskID, ports.CompletedOutcome(review)); err != nil {
		return err
	}

	o.broker.Broadcast(taskID, domain.ProgressMessage{
		TaskID:    taskID,
		EventType: domain.EventCompleted,
		Progress:  100,
		Message:   "review completed",
		Payload: domain.JSONB{
			"quality_score":   sc.QualityScore,
			"saved_file_path": sc.SavedFilePath,
			"diff_stats":      sc.DiffStats,
		},
	})
	o.logger.Infow("orchestrator_completed", "task_id", taskID, "quality_score", sc.QualityScore)
	return nil
}

// invoke runs one stage, converting panics in the collaborator into a
// typed stage error.
func (o *TaskOrchestrator) invoke(ctx context.Context, stage domain.Stage, sc *ports.StageContext) (result *ports.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("orchestrator_stage_panic", "task_id", sc.TaskID, "stage", stage, "panic", r)
			err = NewStageError(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = o.runners[stage].Run(ctx, sc)
	if err != nil {
		err = NewStageError(stage, err)
	}
	return result, err
}

func (o *TaskOrchestrator) fail(ctx context.Context, taskID string, stage domain.Stage, cause error) {
	stageErr := NewStageError(stage, cause)
	o.logger.Errorw("orchestrator_stage_failed", "task_id", taskID, "stage", stageErr.Stage, "error", cause)

	o.setStage(ctx, taskID, stageErr.Stage, domain.StageStatusFailed, stageErr.Error(), 0, nil)

	if err := o.store.Finalize(ctx, taskID, ports.FailedOutcome(stageErr.Error())); err != nil {
		o.logger.Errorw("orchestrator_finalize_failed", "task_id", taskID, "error", err)
	}

	task, err := o.store.Get(ctx, taskID)
	progress := 0
	if err == nil {
		progress = task.OverallProgress
	}
	o.broker.Broadcast(taskID, domain.ProgressMessage{
		TaskID:    taskID,
		EventType: domain.EventFailed,
		Stage:     stageErr.Stage,
		Progress:  progress,
		Message:   stageErr.Error(),
	})
}

// setStage writes the stage transition then broadcasts it with the
// recomputed overall progress.
func (o *TaskOrchestrator) setStage(ctx context.Context, taskID string, stage domain.Stage, status domain.StageStatus, message string, progress int, payload domain.JSONB) {
	if err := o.store.UpdateStage(ctx, taskID, stage, status, message, progress); err != nil {
		o.logger.Errorw("orchestrator_stage_update_failed", "task_id", taskID, "stage", stage, "error", err)
		return
	}

	task, err := o.store.Get(ctx, taskID)
	if err != nil {
		return
	}

	msg := domain.StageUpdateMessage(task, stage, status, message)
	msg.Payload = payload
	o.broker.Broadcast(taskID, msg)
}

func stageStartMessage(stage domain.Stage) string {
	switch stage {
	case domain.StageArchitect:
		return "analyzing code structure"
	case domain.StageReviewer:
		return "reviewing code issues"
	case domain.StageOptimizer:
		return "generating fixes"
	case domain.StageSave:
		return "saving fixed code"
	default:
		return string(stage)
	}
}

func stageDoneMessage(stage domain.Stage) string {
	switch stage {
	case domain.StageArchitect:
		return "architecture analysis completed"
	case domain.StageReviewer:
		return "code review completed"
	case domain.StageOptimizer:
		return "optimization completed"
	case domain.StageSave:
		return "fixed code saved"
	default:
		return string(stage) + " completed"
	}
}
