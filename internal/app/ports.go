package app

import (
	"context"
	"time"

	"elsa-streak-service/internal/domain"
)

// UpdateFunc mutates a record inside a transactional update. Returning an error
// aborts the update and nothing is written.
type UpdateFunc func(rec *domain.StreakRecord) error

// RecordStore abstracts where streak records live (in-memory, Redis, Postgres, Firestore).
type RecordStore interface {
	// Get returns the user's record, creating the zero record on first read.
	Get(ctx context.Context, userID string) (domain.StreakRecord, error)
	// Update runs fn as one read-modify-write. A lost race is reported as
	// domain.ErrConcurrentUpdateConflict and nothing is written.
	Update(ctx context.Context, userID string, fn UpdateFunc) (domain.StreakRecord, error)
	// Top returns up to limit records ordered by current streak, highest first.
	Top(ctx context.Context, limit int) ([]domain.StreakRecord, error)
}

// ActivityLog stores completed quiz attempts.
type ActivityLog interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	// Between returns the user's events with start <= completedAt <= end, oldest first.
	Between(ctx context.Context, userID string, start, end time.Time) ([]domain.ActivityEvent, error)
	// History returns every event of the user, oldest first.
	History(ctx context.Context, userID string) ([]domain.ActivityEvent, error)
}
