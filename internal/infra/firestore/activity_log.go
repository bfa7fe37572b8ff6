package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"elsa-streak-service/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errEmptyEventID = errors.New("activity event has no id")

type resultDoc struct {
	UserID      string    `firestore:"userId"`
	QuizID      string    `firestore:"quizId"`
	CompletedAt time.Time `firestore:"completedAt"`
}

// ActivityLog stores completions as quizResults/{eventId}. Range queries on
// userId + completedAt need the matching composite index.
type ActivityLog struct {
	client *firestore.Client
}

func NewActivityLog(client *firestore.Client) *ActivityLog {
	return &ActivityLog{client: client}
}

func (l *ActivityLog) Append(ctx context.Context, event domain.ActivityEvent) error {
	if event.ID == "" {
		return errEmptyEventID
	}
	doc := resultDoc{UserID: event.UserID, QuizID: event.QuizID, CompletedAt: event.CompletedAt}
	_, err := l.client.Collection(resultsCollection).Doc(event.ID).Create(ctx, doc)
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (l *ActivityLog) Between(ctx context.Context, userID string, start, end time.Time) ([]domain.ActivityEvent, error) {
	q := l.client.Collection(resultsCollection).
		Where("userId", "==", userID).
		Where("completedAt", ">=", start).
		Where("completedAt", "<=", end).
		OrderBy("completedAt", firestore.Asc)
	return l.run(ctx, q)
}

func (l *ActivityLog) History(ctx context.Context, userID string) ([]domain.ActivityEvent, error) {
	q := l.client.Collection(resultsCollection).
		Where("userId", "==", userID).
		OrderBy("completedAt", firestore.Asc)
	return l.run(ctx, q)
}

func (l *ActivityLog) run(ctx context.Context, q firestore.Query) ([]domain.ActivityEvent, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	events := make([]domain.ActivityEvent, 0, len(snaps))
	for _, snap := range snaps {
		var doc resultDoc
		if err := snap.DataTo(&doc); err != nil {
			// Keep the event with a zero completedAt; recalculation discards it.
			userID, _ := snap.Data()["userId"].(string)
			log.Printf("unreadable quiz result %s for %q: %v", snap.Ref.ID, userID, err)
			doc = resultDoc{UserID: userID}
		}
		events = append(events, domain.ActivityEvent{
			ID:          snap.Ref.ID,
			UserID:      doc.UserID,
			QuizID:      doc.QuizID,
			CompletedAt: doc.CompletedAt,
		})
	}
	return events, nil
}
