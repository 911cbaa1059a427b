package domain

// Event types pushed to live subscribers of a task.
const (
	EventStageUpdate = "stage_update"
	EventCompleted   = "completed"
	EventFailed      = "failed"
)

// ProgressMessage is the envelope broadcast to every subscriber of a task.
// The transport layer serializes it to JSON before writing to the wire.
type ProgressMessage struct {
	TaskID    string      `json:"task_id"`
	EventType string      `json:"event_type"`
	Stage     Stage       `json:"stage,omitempty"`
	Status    StageStatus `json:"status,omitempty"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Payload   JSONB       `json:"payload,omitempty"`
}

// StageUpdateMessage builds the per-stage progress envelope.
func StageUpdateMessage(task *Task, stage Stage, status StageStatus, message string) ProgressMessage {
	return ProgressMessage{
		TaskID:    task.ID,
		EventType: EventStageUpdate,
		Stage:     stage,
		Status:    status,
		Progress:  task.OverallProgress,
		Message:   message,
	}
}
