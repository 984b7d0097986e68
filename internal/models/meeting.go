package models

// MeetingStatus tracks a VOD meeting's caption-generation lifecycle, as
// updated by the VOD Batch Worker (spec.md §4.9).
type MeetingStatus string

// Meeting statuses the VOD Batch Worker transitions through.
const (
	MeetingStatusPending    MeetingStatus = "pending"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusEnded      MeetingStatus = "ended"
)

// Meeting is the durable-store row the VOD Batch Worker updates. The full
// meeting entity (title, date, bill links, etc.) is owned by the CRUD HTTP
// handlers out of scope for this engine; only the fields this engine
// writes are modeled here.
type Meeting struct {
	ID              string        `gorm:"primarykey" json:"id"`
	Status          MeetingStatus `json:"status"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
}

// TableName overrides GORM's default pluralization.
func (Meeting) TableName() string { return "meetings" }
