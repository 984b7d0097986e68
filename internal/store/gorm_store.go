package store

import (
	"context"
	"fmt"

	"github.com/jihoonkim/legisub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store over a GORM connection. The dialect
// (SQLite/Postgres/MySQL) is chosen by whoever constructs the *gorm.DB —
// see internal/database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an existing GORM connection as a Store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates/updates the tables this store needs.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&models.Caption{}, &models.Meeting{}, &models.TaskState{}); err != nil {
		return fmt.Errorf("migrating store schema: %w", err)
	}
	return nil
}

// InsertCaptions bulk-inserts captions for a room, in order.
func (s *GormStore) InsertCaptions(ctx context.Context, captions []*models.Caption) error {
	if len(captions) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(captions).Error; err != nil {
		return fmt.Errorf("inserting captions: %w", err)
	}
	return nil
}

// SetMeetingStatus updates a meeting's processing status, creating the row
// if it does not already exist (the CRUD HTTP surface that normally owns
// meeting rows is out of scope for this engine).
func (s *GormStore) SetMeetingStatus(ctx context.Context, meetingID string, status models.MeetingStatus, durationSeconds *float64) error {
	m := &models.Meeting{ID: meetingID, Status: status, DurationSeconds: durationSeconds}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "duration_seconds"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("updating meeting status: %w", err)
	}
	return nil
}

// UpsertTaskState writes the current VOD task state.
func (s *GormStore) UpsertTaskState(ctx context.Context, task *models.TaskState) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"meeting_id", "status", "progress", "message", "error"}),
	}).Create(task).Error
	if err != nil {
		return fmt.Errorf("upserting task state: %w", err)
	}
	return nil
}
