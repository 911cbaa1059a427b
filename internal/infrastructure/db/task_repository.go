package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/core/services"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// taskRepository is the persistent task store. It honors the same contract
// and invariants as the in-memory store; which one backs the process is a
// config choice made at the composition root.
type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskStore {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, input ports.CreateTaskInput) (*domain.Task, error) {
	id := uuid.New().String()
	now := time.Now()

	task := &domain.Task{
		ID:          id,
		FileName:    input.FileName,
		FilePath:    input.FilePath,
		FileSize:    input.FileSize,
		Status:      domain.TaskStatusPending,
		Message:     "task created",
		Options:     input.Options,
		StageStates: domain.NewStageStates(id, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "file_name", input.FileName, "error", err)
		return nil, err
	}

	r.log.Infow("task_repo_create_ok", "id", id, "file_name", input.FileName)
	return task, nil
}

func (r *taskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.WithContext(ctx).
		Preload("StageStates", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrTaskNotFound
		}
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) List(ctx context.Context, limit, offset int) ([]domain.Task, error) {
	var tasks []domain.Task
	q := r.db.WithContext(ctx).
		Preload("StageStates", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Task{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *taskRepository) Start(ctx context.Context, id string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.TaskStatusRunning,
			"started_at": now,
			"message":    "review started",
			"updated_at": now,
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_start_failed", "id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 1 {
		r.log.Infow("task_repo_start_ok", "id", id)
		return nil
	}

	// Zero rows: either the task is unknown or already claimed.
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return services.ErrTaskNotFound
	}
	r.log.Warnw("task_repo_start_rejected", "id", id)
	return services.ErrInvalidState
}

func (r *taskRepository) UpdateStage(ctx context.Context, id string, stage domain.Stage, status domain.StageStatus, message string, progress int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task domain.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTaskNotFound
			}
			return err
		}

		// Terminal tasks absorb late duplicate updates silently.
		if task.Status.Terminal() {
			return nil
		}

		var st domain.StageState
		err = tx.First(&st, "task_id = ? AND name = ?", id, stage).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTaskInvalidInput
			}
			return err
		}
		if st.Status == domain.StageStatusCompleted && status != domain.StageStatusCompleted {
			return nil
		}

		now := time.Now()
		st.Status = status
		st.Message = message
		st.Progress = progress
		st.UpdatedAt = now
		if err := tx.Save(&st).Error; err != nil {
			return err
		}

		var states []domain.StageState
		if err := tx.Where("task_id = ?", id).Order("id ASC").Find(&states).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"overall_progress": domain.ComputeProgress(states),
			"message":          message,
			"updated_at":       now,
		}
		if idx := domain.StageIndex(stage); idx > task.StageCursor {
			updates["stage_cursor"] = idx
		}
		return tx.Model(&task).Updates(updates).Error
	})
}

func (r *taskRepository) Finalize(ctx context.Context, id string, outcome ports.Outcome) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task domain.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTaskNotFound
			}
			return err
		}

		// First terminal write wins.
		if task.Status.Terminal() {
			return nil
		}

		now := time.Now()
		task.Status = outcome.Status
		task.CompletedAt = &now
		task.UpdatedAt = now

		switch outcome.Status {
		case domain.TaskStatusCompleted:
			task.Result = outcome.Result
			task.Message = "review completed"
		case domain.TaskStatusFailed:
			task.Error = outcome.Error
			task.Message = "review failed"
		default:
			return services.ErrTaskInvalidInput
		}

		var states []domain.StageState
		if err := tx.Where("task_id = ?", id).Find(&states).Error; err != nil {
			return err
		}
		task.OverallProgress = domain.ComputeProgress(states)

		if err := tx.Omit("StageStates").Save(&task).Error; err != nil {
			return err
		}
		r.log.Infow("task_repo_finalize_ok", "id", id, "status", outcome.Status)
		return nil
	})
}

func (r *taskRepository) CleanupOldTasks(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	count, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count <= keep {
		return 0, nil
	}

	excess := count - keep
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM tasks WHERE id IN (
			SELECT id FROM tasks ORDER BY created_at ASC LIMIT ?
		)
	`, excess)
	if res.Error != nil {
		r.log.Errorw("task_repo_cleanup_failed", "error", res.Error)
		return 0, res.Error
	}

	removed := int(res.RowsAffected)
	r.log.Infow("task_repo_cleanup_ok", "removed", removed, "kept", keep)
	return removed, nil
}
