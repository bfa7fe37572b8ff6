package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"elsa-streak-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ActivityLog stores completions in a per-user sorted set scored by epoch milliseconds:
//
//	ZADD streak:events:{userID} {completedAtMillis} {event json}
type ActivityLog struct {
	client *redis.Client
}

func NewActivityLog(client *redis.Client) *ActivityLog {
	return &ActivityLog{client: client}
}

func (l *ActivityLog) Append(ctx context.Context, event domain.ActivityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}
	err = l.client.ZAdd(ctx, l.key(event.UserID), redis.Z{
		Score:  float64(event.CompletedAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("append activity event: %w", err)
	}
	return nil
}

func (l *ActivityLog) Between(ctx context.Context, userID string, start, end time.Time) ([]domain.ActivityEvent, error) {
	members, err := l.client.ZRangeByScore(ctx, l.key(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	events := decodeEvents(members)
	out := events[:0]
	for _, event := range events {
		if event.CompletedAt.Before(start) || event.CompletedAt.After(end) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (l *ActivityLog) History(ctx context.Context, userID string) ([]domain.ActivityEvent, error) {
	members, err := l.client.ZRange(ctx, l.key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity history: %w", err)
	}
	return decodeEvents(members), nil
}

func (l *ActivityLog) key(userID string) string {
	return "streak:events:" + userID
}

// eventKeys is the part of a stored event that is still useful when the
// rest of the payload cannot be decoded.
type eventKeys struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	QuizID string `json:"quizId"`
}

// decodeEvents never fails as a whole. A member that does not decode is logged
// and returned with a zero completedAt so callers discard it.
func decodeEvents(members []string) []domain.ActivityEvent {
	events := make([]domain.ActivityEvent, 0, len(members))
	for _, m := range members {
		var event domain.ActivityEvent
		if err := json.Unmarshal([]byte(m), &event); err != nil {
			var keys eventKeys
			_ = json.Unmarshal([]byte(m), &keys)
			log.Printf("unreadable activity event %q for %q: %v", keys.ID, keys.UserID, err)
			event = domain.ActivityEvent{ID: keys.ID, UserID: keys.UserID, QuizID: keys.QuizID}
		}
		events = append(events, event)
	}
	return events
}
