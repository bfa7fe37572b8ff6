package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"elsa-streak-service/internal/domain"
	"github.com/google/uuid"
)

// newEmulatorClient connects to the Firestore emulator; tests are skipped
// when FIRESTORE_EMULATOR_HOST is not set.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "streak-test")
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRecordStoreCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore(newEmulatorClient(t))
	userID := "u-" + uuid.NewString()

	rec, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.CurrentStreak != 0 || rec.MaxFreezes != domain.DefaultMaxFreezes {
		t.Fatalf("unexpected fresh record: %+v", rec)
	}

	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	updated, err := store.Update(ctx, userID, func(r *domain.StreakRecord) error {
		r.CurrentStreak = 4
		r.LongestStreak = 4
		r.LastActivityDate = day
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CurrentStreak != 4 {
		t.Fatalf("expected streak 4, got %d", updated.CurrentStreak)
	}

	got, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastActivityDate.Equal(day) || got.LastStreakLoss != nil {
		t.Fatalf("unexpected stored record: %+v", got)
	}
}

func TestRecordStoreUpdatePassesRuleErrors(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore(newEmulatorClient(t))

	_, err := store.Update(ctx, "u-"+uuid.NewString(), func(r *domain.StreakRecord) error {
		return domain.ErrFreezeExhausted
	})
	if !errors.Is(err, domain.ErrFreezeExhausted) {
		t.Fatalf("expected ErrFreezeExhausted, got %v", err)
	}
}

func TestActivityLogRangeQueries(t *testing.T) {
	ctx := context.Background()
	log := NewActivityLog(newEmulatorClient(t))
	userID := "u-" + uuid.NewString()
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	for i, h := range []int{1, 13, 30} {
		event := domain.ActivityEvent{
			ID:          uuid.NewString(),
			UserID:      userID,
			QuizID:      "quiz",
			CompletedAt: base.Add(time.Duration(h) * time.Hour),
		}
		if err := log.Append(ctx, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if i == 0 {
			if err := log.Append(ctx, event); err != nil {
				t.Fatalf("duplicate append should be ignored: %v", err)
			}
		}
	}

	day, err := log.Between(ctx, userID, base, base.Add(24*time.Hour-time.Millisecond))
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 events on the day, got %d", len(day))
	}

	all, err := log.History(ctx, userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 || !all[0].CompletedAt.Before(all[2].CompletedAt) {
		t.Fatalf("unexpected history: %+v", all)
	}
}

func TestActivityLogToleratesUnreadableResult(t *testing.T) {
	ctx := context.Background()
	client := newEmulatorClient(t)
	log := NewActivityLog(client)
	userID := "u-" + uuid.NewString()

	good := domain.ActivityEvent{ID: uuid.NewString(), UserID: userID, CompletedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	if err := log.Append(ctx, good); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := client.Collection(resultsCollection).Doc("bad-"+userID).Set(ctx, map[string]interface{}{
		"userId":      userID,
		"completedAt": "not-a-time",
	})
	if err != nil {
		t.Fatalf("write corrupt result: %v", err)
	}

	history, err := log.History(ctx, userID)
	if err != nil {
		t.Fatalf("history should tolerate a corrupt result: %v", err)
	}
	readable := 0
	for _, e := range history {
		if !e.CompletedAt.IsZero() {
			readable++
		}
	}
	if readable != 1 {
		t.Fatalf("expected one readable event, got %+v", history)
	}
}
