package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"elsa-streak-service/internal/domain"
)

func TestRecordStoreCreatesOnFirstRead(t *testing.T) {
	store := NewRecordStore()

	rec, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.UserID != "u1" || rec.CurrentStreak != 0 || rec.MaxFreezes != domain.DefaultMaxFreezes {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestRecordStoreUpdateAbortsOnError(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	if _, err := store.Update(ctx, "u1", func(rec *domain.StreakRecord) error {
		rec.CurrentStreak = 4
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := store.Update(ctx, "u1", func(rec *domain.StreakRecord) error {
		rec.CurrentStreak = 99
		return domain.ErrFreezeExhausted
	})
	if !errors.Is(err, domain.ErrFreezeExhausted) {
		t.Fatalf("expected fn error, got %v", err)
	}

	rec, _ := store.Get(ctx, "u1")
	if rec.CurrentStreak != 4 {
		t.Fatalf("aborted update must not be written, got %d", rec.CurrentStreak)
	}
}

func TestRecordStoreDoesNotShareLossPointer(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	lost := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = store.Update(ctx, "u1", func(rec *domain.StreakRecord) error {
		rec.LastStreakLoss = &lost
		return nil
	})
	rec, _ := store.Get(ctx, "u1")
	*rec.LastStreakLoss = lost.Add(time.Hour)

	again, _ := store.Get(ctx, "u1")
	if !again.LastStreakLoss.Equal(lost) {
		t.Fatalf("stored record was mutated through a returned copy")
	}
}

func TestRecordStoreTopOrdersByCurrentStreak(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	for id, n := range map[string]int{"a": 2, "b": 7, "c": 4} {
		n := n
		_, _ = store.Update(ctx, id, func(rec *domain.StreakRecord) error {
			rec.CurrentStreak = n
			return nil
		})
	}

	top, err := store.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "b" || top[1].UserID != "c" {
		t.Fatalf("unexpected order %+v", top)
	}
}
