package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"elsa-streak-service/internal/domain"
)

// ActivityLog keeps quiz completions per user, ordered by completion time.
type ActivityLog struct {
	mu     sync.RWMutex
	events map[string][]domain.ActivityEvent
	ids    map[string]struct{}
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{
		events: make(map[string][]domain.ActivityEvent),
		ids:    make(map[string]struct{}),
	}
}

// Append stores event; replaying an event ID is a no-op.
func (l *ActivityLog) Append(_ context.Context, event domain.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.ID != "" {
		if _, dup := l.ids[event.ID]; dup {
			return nil
		}
		l.ids[event.ID] = struct{}{}
	}
	list := l.events[event.UserID]
	i := sort.Search(len(list), func(i int) bool { return list[i].CompletedAt.After(event.CompletedAt) })
	list = append(list, domain.ActivityEvent{})
	copy(list[i+1:], list[i:])
	list[i] = event
	l.events[event.UserID] = list
	return nil
}

func (l *ActivityLog) Between(_ context.Context, userID string, start, end time.Time) ([]domain.ActivityEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.ActivityEvent
	for _, event := range l.events[userID] {
		if event.CompletedAt.Before(start) || event.CompletedAt.After(end) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (l *ActivityLog) History(_ context.Context, userID string) ([]domain.ActivityEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ActivityEvent, len(l.events[userID]))
	copy(out, l.events[userID])
	return out, nil
}
