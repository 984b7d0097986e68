package models

// TaskStatus is the lifecycle state of a VOD caption-generation task
// (spec.md §3 "ASR Task State (VOD)").
type TaskStatus string

// VOD task statuses.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskState is the optional durable mirror of the in-process VOD task
// table (internal/vod.Tracker), written so a task can be inspected or
// recovered after a process restart. It is not the system of record for
// captions — the bulk-inserted Caption rows are.
type TaskState struct {
	TaskID    string     `gorm:"primarykey" json:"task_id"`
	MeetingID string     `gorm:"index;not null" json:"meeting_id"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TableName overrides GORM's default pluralization.
func (TaskState) TableName() string { return "vod_task_states" }
