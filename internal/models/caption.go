package models

// Caption is the wire + persisted representation of one finalized,
// user-visible caption line (spec.md §3). RoomID is a channel id for live
// rooms or a meeting id for VOD. ID is minted on emission and is the
// correlation key the Caption Refiner later uses to issue corrections.
type Caption struct {
	BaseModel
	RoomID       string  `gorm:"index;not null" json:"room_id"`
	Text         string  `gorm:"type:text;not null" json:"text"`
	OriginalText string  `gorm:"type:text" json:"original_text,omitempty"`
	StartTimeSec float64 `json:"start_time_sec"`
	EndTimeSec   float64 `json:"end_time_sec"`
	Confidence   float64 `json:"confidence"`
	SpeakerLabel *string `json:"speaker_label,omitempty"`
}

// TableName overrides GORM's default pluralization to match the durable
// store schema named in spec.md §6.
func (Caption) TableName() string { return "captions" }
