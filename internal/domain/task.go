package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== ENUMS ====================

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type StageStatus string

const (
	StageStatusIdle      StageStatus = "idle"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// Stage identifies one step of the fixed review pipeline. The set is closed;
// runners are dispatched by a static map keyed on this type, never by
// free-form strings.
type Stage string

const (
	StageArchitect Stage = "Architect"
	StageReviewer  Stage = "Reviewer"
	StageOptimizer Stage = "Optimizer"
	StageSave      Stage = "Save"
)

// Stages returns the pipeline order. Callers must not mutate the result.
func Stages() []Stage {
	return []Stage{StageArchitect, StageReviewer, StageOptimizer, StageSave}
}

// StageIndex returns the position of a stage in the pipeline, or -1.
func StageIndex(s Stage) int {
	for i, name := range Stages() {
		if name == s {
			return i
		}
	}
	return -1
}

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// ==================== ENTITIES ====================

// Task is the authoritative record for one review run. All mutation goes
// through the task store; handlers only ever see copies.
type Task struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`

	FileName string `gorm:"size:255;not null" json:"file_name"`
	FilePath string `gorm:"size:512" json:"file_path"`
	FileSize int64  `json:"file_size"`

	Status          TaskStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	StageCursor     int        `json:"stage_cursor"`
	OverallProgress int        `json:"overall_progress"`
	Message         string     `gorm:"type:text" json:"message"`
	Error           string     `gorm:"type:text" json:"error,omitempty"`

	StageStates []StageState `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"stage_states"`

	Result  *ReviewResult `gorm:"embedded;embeddedPrefix:result_" json:"result,omitempty"`
	Options JSONB         `gorm:"type:jsonb" json:"options,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageState is the per-stage progress record. Every task owns exactly one
// row per pipeline stage, pre-populated as idle at creation.
type StageState struct {
	ID        uint        `gorm:"primaryKey" json:"-"`
	TaskID    string      `gorm:"size:36;index" json:"-"`
	Name      Stage       `gorm:"size:20;not null" json:"name"`
	Status    StageStatus `gorm:"size:20;not null;default:'idle'" json:"status"`
	Message   string      `gorm:"type:text" json:"message"`
	Progress  int         `json:"progress"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ReviewResult is the final artifact assembled when a task completes.
type ReviewResult struct {
	OriginalContent  string  `gorm:"type:text" json:"original_content"`
	FixedContent     string  `gorm:"type:text" json:"fixed_content"`
	ArchitectReport  string  `gorm:"type:text" json:"architect_report"`
	ReviewerReport   string  `gorm:"type:text" json:"reviewer_report"`
	OptimizerSummary string  `gorm:"type:text" json:"optimizer_summary"`
	QualityScore     float64 `json:"quality_score"`
	SavedFilePath    string  `gorm:"size:512" json:"saved_file_path"`
	DiffStats        JSONB   `gorm:"type:jsonb" json:"diff_stats"`
}

// NewStageStates builds the initial idle record set for a task.
func NewStageStates(taskID string, now time.Time) []StageState {
	states := make([]StageState, 0, len(Stages()))
	for _, name := range Stages() {
		states = append(states, StageState{
			TaskID:    taskID,
			Name:      name,
			Status:    StageStatusIdle,
			UpdatedAt: now,
		})
	}
	return states
}

// ComputeProgress derives overall progress from the stage states:
// completed_stages / total_stages * 100. It is the only progress rule.
func ComputeProgress(states []StageState) int {
	if len(states) == 0 {
		return 0
	}
	completed := 0
	for _, st := range states {
		if st.Status == StageStatusCompleted {
			completed++
		}
	}
	return completed * 100 / len(states)
}

// Clone returns a deep copy safe to hand outside the store.
func (t *Task) Clone() *Task {
	cp := *t
	cp.StageStates = make([]StageState, len(t.StageStates))
	copy(cp.StageStates, t.StageStates)
	if t.Result != nil {
		res := *t.Result
		cp.Result = &res
	}
	return &cp
}

// StageState returns a pointer into the task's own slice for the named
// stage, or nil if the stage is unknown.
func (t *Task) StageState(name Stage) *StageState {
	for i := range t.StageStates {
		if t.StageStates[i].Name == name {
			return &t.StageStates[i]
		}
	}
	return nil
}
