package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// taskRecord pairs a task with its own mutex so unrelated tasks never
// contend. The store-wide lock guards only the map structure.
type taskRecord struct {
	mu   sync.Mutex
	task *domain.Task
}

type TaskStore struct {
	mu      sync.RWMutex
	records map[string]*taskRecord
	logger  *logger.Logger
}

func NewTaskStore(log *logger.Logger) *TaskStore {
	return &TaskStore{
		records: make(map[string]*taskRecord),
		logger:  log,
	}
}

var _ ports.TaskStore = (*TaskStore)(nil)

func (s *TaskStore) Create(ctx context.Context, input ports.CreateTaskInput) (*domain.Task, error) {
	id := uuid.New().String()
	now := time.Now()

	task := &domain.Task{
		ID:              id,
		FileName:        input.FileName,
		FilePath:        input.FilePath,
		FileSize:        input.FileSize,
		Status:          domain.TaskStatusPending,
		Message:         "task created",
		Options:         input.Options,
		StageStates:     domain.NewStageStates(id, now),
		OverallProgress: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.records[id] = &taskRecord{task: task}
	s.mu.Unlock()

	s.logger.Infow("task_create_ok", "id", id, "file_name", input.FileName, "file_size", input.FileSize)
	return task.Clone(), nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	rec, ok := s.record(id)
	if !ok {
		return nil, ErrTaskNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.task.Clone(), nil
}

func (s *TaskStore) List(ctx context.Context, limit, offset int) ([]domain.Task, error) {
	s.mu.RLock()
	recs := make([]*taskRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	tasks := make([]domain.Task, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		tasks = append(tasks, *rec.task.Clone())
		rec.mu.Unlock()
	}

	// Newest first, matching the API listing order.
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if offset >= len(tasks) {
		return []domain.Task{}, nil
	}
	tasks = tasks[offset:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (s *TaskStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *TaskStore) Start(ctx context.Context, id string) error {
	rec, ok := s.record(id)
	if !ok {
		return ErrTaskNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.task.Status != domain.TaskStatusPending {
		s.logger.Warnw("task_start_rejected", "id", id, "status", rec.task.Status)
		return ErrInvalidState
	}

	now := time.Now()
	rec.task.Status = domain.TaskStatusRunning
	rec.task.StartedAt = &now
	rec.task.Message = "review started"
	rec.task.UpdatedAt = now

	s.logger.Infow("task_start_ok", "id", id)
	return nil
}

func (s *TaskStore) UpdateStage(ctx context.Context, id string, stage domain.Stage, status domain.StageStatus, message string, progress int) error {
	rec, ok := s.record(id)
	if !ok {
		return ErrTaskNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Terminal tasks absorb late duplicate updates silently.
	if rec.task.Status.Terminal() {
		s.logger.Debugw("task_stage_update_ignored_terminal", "id", id, "stage", stage)
		return nil
	}

	st := rec.task.StageState(stage)
	if st == nil {
		return ErrTaskInvalidInput
	}

	// A completed stage never regresses; drop anything but a repeat.
	if st.Status == domain.StageStatusCompleted && status != domain.StageStatusCompleted {
		return nil
	}

	now := time.Now()
	st.Status = status
	st.Message = message
	st.Progress = progress
	st.UpdatedAt = now

	if idx := domain.StageIndex(stage); idx > rec.task.StageCursor {
		rec.task.StageCursor = idx
	}
	rec.task.OverallProgress = domain.ComputeProgress(rec.task.StageStates)
	rec.task.Message = message
	rec.task.UpdatedAt = now

	s.logger.Infow("task_stage_update", "id", id, "stage", stage, "status", status, "overall_progress", rec.task.OverallProgress)
	return nil
}

func (s *TaskStore) Finalize(ctx context.Context, id string, outcome ports.Outcome) error {
	rec, ok := s.record(id)
	if !ok {
		return ErrTaskNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// First terminal write wins.
	if rec.task.Status.Terminal() {
		s.logger.Debugw("task_finalize_ignored", "id", id, "status", rec.task.Status)
		return nil
	}

	now := time.Now()
	rec.task.Status = outcome.Status
	rec.task.CompletedAt = &now
	rec.task.UpdatedAt = now
	rec.task.OverallProgress = domain.ComputeProgress(rec.task.StageStates)

	switch outcome.Status {
	case domain.TaskStatusCompleted:
		rec.task.Result = outcome.Result
		rec.task.Message = "review completed"
	case domain.TaskStatusFailed:
		rec.task.Error = outcome.Error
		rec.task.Message = "review failed"
	default:
		return ErrTaskInvalidInput
	}

	s.logger.Infow("task_finalize_ok", "id", id, "status", outcome.Status)
	return nil
}

func (s *TaskStore) CleanupOldTasks(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) <= keep {
		return 0, nil
	}

	type entry struct {
		id        string
		createdAt time.Time
	}
	entries := make([]entry, 0, len(s.records))
	for id, rec := range s.records {
		entries = append(entries, entry{id: id, createdAt: rec.task.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	removed := 0
	for _, e := range entries[:len(entries)-keep] {
		delete(s.records, e.id)
		removed++
	}

	s.logger.Infow("task_cleanup_ok", "removed", removed, "kept", keep)
	return removed, nil
}

func (s *TaskStore) record(id string) (*taskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}
