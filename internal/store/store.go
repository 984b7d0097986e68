// Package store defines the durable-store port used by the VOD Batch
// Worker and (optionally) VOD task-state recovery (spec.md §6). It is the
// system of record; in-memory state elsewhere in this engine is
// best-effort (spec.md §1 Non-goals).
package store

import (
	"context"

	"github.com/jihoonkim/legisub/internal/models"
)

// Store is the durable-store adapter boundary. No SQL dialect is baked in
// here — concrete implementations (e.g. GormStore) choose the dialect.
type Store interface {
	// InsertCaptions bulk-inserts captions for a room, in order. Used only
	// by the VOD path (see DESIGN.md's Open Question resolution on the
	// live-caption persistence gap).
	InsertCaptions(ctx context.Context, captions []*models.Caption) error

	// SetMeetingStatus updates a meeting's processing status. When status
	// is MeetingStatusEnded and durationSeconds is non-nil, the duration is
	// recorded alongside it.
	SetMeetingStatus(ctx context.Context, meetingID string, status models.MeetingStatus, durationSeconds *float64) error

	// UpsertTaskState writes the current VOD task state, for optional
	// process-restart recovery. Never required for correctness — the
	// in-process internal/vod.Tracker is authoritative while the process
	// is alive.
	UpsertTaskState(ctx context.Context, task *models.TaskState) error
}
