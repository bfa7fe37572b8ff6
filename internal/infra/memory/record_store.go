package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
)

// RecordStore is an in-memory implementation of app.RecordStore. Updates run
// under a single lock, so they never conflict.
type RecordStore struct {
	clock func() time.Time

	mu      sync.Mutex
	records map[string]domain.StreakRecord
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		clock:   time.Now,
		records: make(map[string]domain.StreakRecord),
	}
}

func (s *RecordStore) Get(_ context.Context, userID string) (domain.StreakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = domain.NewStreakRecord(userID)
		rec.UpdatedAt = s.clock()
		s.records[userID] = rec
	}
	return clone(rec), nil
}

func (s *RecordStore) Update(_ context.Context, userID string, fn app.UpdateFunc) (domain.StreakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = domain.NewStreakRecord(userID)
	}
	rec = clone(rec)
	if err := fn(&rec); err != nil {
		return domain.StreakRecord{}, err
	}
	rec.UserID = userID
	rec.UpdatedAt = s.clock()
	s.records[userID] = rec
	return clone(rec), nil
}

func (s *RecordStore) Top(_ context.Context, limit int) ([]domain.StreakRecord, error) {
	s.mu.Lock()
	out := make([]domain.StreakRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentStreak != out[j].CurrentStreak {
			return out[i].CurrentStreak > out[j].CurrentStreak
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone copies the record so callers never share the loss timestamp pointer.
func clone(rec domain.StreakRecord) domain.StreakRecord {
	if rec.LastStreakLoss != nil {
		lost := *rec.LastStreakLoss
		rec.LastStreakLoss = &lost
	}
	return rec
}
