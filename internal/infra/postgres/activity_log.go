package postgres

import (
	"context"
	"fmt"
	"time"

	"elsa-streak-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ActivityLog reads and writes quiz completions in quiz_results.
type ActivityLog struct {
	pool *pgxpool.Pool
}

func NewActivityLog(pool *pgxpool.Pool) *ActivityLog {
	return &ActivityLog{pool: pool}
}

func (l *ActivityLog) Append(ctx context.Context, event domain.ActivityEvent) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO quiz_results (id, user_id, quiz_id, completed_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.UserID, event.QuizID, event.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (l *ActivityLog) Between(ctx context.Context, userID string, start, end time.Time) ([]domain.ActivityEvent, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, completed_at FROM quiz_results
		 WHERE user_id = $1 AND completed_at BETWEEN $2 AND $3
		 ORDER BY completed_at`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	return scanEvents(rows)
}

func (l *ActivityLog) History(ctx context.Context, userID string) ([]domain.ActivityEvent, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, completed_at FROM quiz_results
		 WHERE user_id = $1 ORDER BY completed_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.ActivityEvent, error) {
	defer rows.Close()
	var events []domain.ActivityEvent
	for rows.Next() {
		var event domain.ActivityEvent
		if err := rows.Scan(&event.ID, &event.UserID, &event.QuizID, &event.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read quiz results: %w", err)
	}
	return events, nil
}
