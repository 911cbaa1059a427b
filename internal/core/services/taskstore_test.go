package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggerConfig{
		Level:            "error",
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	return log
}

func newTestTask(t *testing.T, store *TaskStore) *domain.Task {
	t.Helper()
	task, err := store.Create(context.Background(), ports.CreateTaskInput{
		FileName: "example.py",
		FilePath: "/tmp/example.py",
		FileSize: 42,
	})
	require.NoError(t, err)
	return task
}

func TestTaskStoreCreateInitializesAllStages(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.OverallProgress)
	require.Len(t, task.StageStates, len(domain.Stages()))
	for i, stage := range domain.Stages() {
		assert.Equal(t, stage, task.StageStates[i].Name)
		assert.Equal(t, domain.StageStatusIdle, task.StageStates[i].Status)
	}
}

func TestTaskStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)

	got.Status = domain.TaskStatusFailed
	got.StageStates[0].Status = domain.StageStatusFailed

	again, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, again.Status)
	assert.Equal(t, domain.StageStatusIdle, again.StageStates[0].Status)
}

func TestTaskStoreGetUnknown(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskStoreStartClaimsOnce(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()

	require.NoError(t, store.Start(ctx, task.ID))
	assert.ErrorIs(t, store.Start(ctx, task.ID), ErrInvalidState)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestTaskStoreProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, task.ID))

	last := 0
	for _, stage := range domain.Stages() {
		require.NoError(t, store.UpdateStage(ctx, task.ID, stage, domain.StageStatusRunning, "working", 0))
		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.OverallProgress, last)
		last = got.OverallProgress

		require.NoError(t, store.UpdateStage(ctx, task.ID, stage, domain.StageStatusCompleted, "done", 100))
		got, err = store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.OverallProgress, last)
		last = got.OverallProgress
	}
	assert.Equal(t, 100, last)
}

func TestTaskStoreStageCursorMonotonic(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, task.ID))

	require.NoError(t, store.UpdateStage(ctx, task.ID, domain.StageOptimizer, domain.StageStatusRunning, "", 0))
	got, _ := store.Get(ctx, task.ID)
	assert.Equal(t, 2, got.StageCursor)

	// An earlier stage never moves the cursor backward.
	require.NoError(t, store.UpdateStage(ctx, task.ID, domain.StageArchitect, domain.StageStatusCompleted, "", 100))
	got, _ = store.Get(ctx, task.ID)
	assert.Equal(t, 2, got.StageCursor)
}

func TestTaskStoreCompletedStageNeverRegresses(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, task.ID))

	require.NoError(t, store.UpdateStage(ctx, task.ID, domain.StageArchitect, domain.StageStatusCompleted, "done", 100))
	require.NoError(t, store.UpdateStage(ctx, task.ID, domain.StageArchitect, domain.StageStatusRunning, "late", 10))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusCompleted, got.StageStates[0].Status)
	assert.Equal(t, 25, got.OverallProgress)
}

func TestTaskStoreFinalizeIdempotent(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, task.ID))

	result := &domain.ReviewResult{FixedContent: "fixed", QualityScore: 9}
	require.NoError(t, store.Finalize(ctx, task.ID, ports.CompletedOutcome(result)))
	require.NoError(t, store.Finalize(ctx, task.ID, ports.FailedOutcome("late failure")))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Result)
	assert.Equal(t, "fixed", got.Result.FixedContent)
	assert.NotNil(t, got.CompletedAt)
}

func TestTaskStoreTerminalAbsorbsLateStageUpdates(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	task := newTestTask(t, store)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, task.ID))
	require.NoError(t, store.Finalize(ctx, task.ID, ports.FailedOutcome("boom")))

	before, err := store.Get(ctx, task.ID)
	require.NoError(t, err)

	// Late duplicate update: silent no-op, not an error.
	require.NoError(t, store.UpdateStage(ctx, task.ID, domain.StageReviewer, domain.StageStatusCompleted, "late", 100))

	after, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, before.OverallProgress, after.OverallProgress)
	assert.Equal(t, before.StageStates, after.StageStates)
	assert.Equal(t, domain.TaskStatusFailed, after.Status)
}

func TestTaskStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		task := newTestTask(t, store)
		ids = append(ids, task.ID)
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, ids[2], tasks[0].ID)
	assert.Equal(t, ids[1], tasks[1].ID)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestTaskStoreCleanupEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(testLogger(t))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		task := newTestTask(t, store)
		ids = append(ids, task.ID)
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := store.CleanupOldTasks(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, id := range ids[:3] {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	}
	for _, id := range ids[3:] {
		_, err := store.Get(ctx, id)
		assert.NoError(t, err)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
