package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/calendar"
	"elsa-streak-service/internal/domain"
	"elsa-streak-service/internal/infra/memory"
	"elsa-streak-service/internal/streak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(date string, hour int) *fakeClock {
	return &fakeClock{now: at(date, hour)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func at(date string, hour int) time.Time {
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour) * time.Hour)
}

func newTestService(records app.RecordStore, clock *fakeClock) (*app.StreakService, *memory.ActivityLog) {
	if records == nil {
		records = memory.NewRecordStore()
	}
	events := memory.NewActivityLog()
	machine := streak.NewMachine(calendar.New(time.UTC), streak.DefaultPolicy())
	return app.NewStreakService(records, events, machine, app.Options{MaxAttempts: 3, Now: clock.Now}), events
}

func complete(t *testing.T, svc *app.StreakService, userID string, ts time.Time) domain.StreakRecord {
	t.Helper()
	rec, _, err := svc.CompleteQuiz(context.Background(), domain.ActivityEvent{UserID: userID, CompletedAt: ts})
	if err != nil {
		t.Fatalf("complete quiz: %v", err)
	}
	return rec
}

func TestCompleteQuizBuildsStreak(t *testing.T) {
	clock := newClock("2024-01-03", 20)
	svc, events := newTestService(nil, clock)

	complete(t, svc, "u1", at("2024-01-01", 9))
	complete(t, svc, "u1", at("2024-01-02", 9))
	rec := complete(t, svc, "u1", at("2024-01-03", 9))

	if rec.CurrentStreak != 3 || rec.LongestStreak != 3 || rec.TotalQuizDays != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	history, _ := events.History(context.Background(), "u1")
	if len(history) != 3 || history[0].ID == "" {
		t.Fatalf("expected three logged events with ids, got %+v", history)
	}
}

func TestCompleteQuizRejectsInvalidEvent(t *testing.T) {
	svc, _ := newTestService(nil, newClock("2024-01-03", 20))

	_, _, err := svc.CompleteQuiz(context.Background(), domain.ActivityEvent{UserID: "u1"})
	if !errors.Is(err, domain.ErrInvalidActivityEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
	_, _, err = svc.CompleteQuiz(context.Background(), domain.ActivityEvent{CompletedAt: time.Now()})
	if !errors.Is(err, domain.ErrInvalidActivityEvent) {
		t.Fatalf("expected invalid event for missing user, got %v", err)
	}
}

func TestConcurrentSameDayCompletionsCountOnce(t *testing.T) {
	clock := newClock("2024-01-02", 20)
	svc, _ := newTestService(nil, clock)
	complete(t, svc, "u1", at("2024-01-01", 9))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.CompleteQuiz(context.Background(), domain.ActivityEvent{
				UserID:      "u1",
				CompletedAt: at("2024-01-02", 8).Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Errorf("complete: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, _ := svc.Get(context.Background(), "u1")
	if rec.CurrentStreak != 2 || rec.TotalQuizDays != 2 {
		t.Fatalf("same-day completions double counted: %+v", rec)
	}
}

// conflictingStore loses the first n transactional races.
type conflictingStore struct {
	*memory.RecordStore
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictingStore) Update(ctx context.Context, userID string, fn app.UpdateFunc) (domain.StreakRecord, error) {
	s.mu.Lock()
	s.calls++
	lose := s.conflicts > 0
	if lose {
		s.conflicts--
	}
	s.mu.Unlock()
	if lose {
		return domain.StreakRecord{}, domain.ErrConcurrentUpdateConflict
	}
	return s.RecordStore.Update(ctx, userID, fn)
}

func TestUpdateRetriesConflicts(t *testing.T) {
	store := &conflictingStore{RecordStore: memory.NewRecordStore(), conflicts: 2}
	svc, _ := newTestService(store, newClock("2024-01-01", 20))

	rec := complete(t, svc, "u1", at("2024-01-01", 9))
	if rec.CurrentStreak != 1 || store.calls != 3 {
		t.Fatalf("expected success on third attempt, got streak=%d calls=%d", rec.CurrentStreak, store.calls)
	}
}

func TestUpdateSurfacesStoreUnavailableAfterBudget(t *testing.T) {
	store := &conflictingStore{RecordStore: memory.NewRecordStore(), conflicts: 10}
	svc, _ := newTestService(store, newClock("2024-01-01", 20))

	_, err := svc.UseFreeze(context.Background(), "u1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
}

func TestBreakReviveExtendThroughService(t *testing.T) {
	clock := newClock("2024-01-05", 20)
	svc, _ := newTestService(nil, clock)
	ctx := context.Background()
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		complete(t, svc, "u1", at(d, 9))
	}

	clock.Set(at("2024-01-07", 8))
	rec, err := svc.DetectBreak(ctx, "u1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if rec.CurrentStreak != 0 || !rec.CanRevive || rec.LostStreakLength != 5 {
		t.Fatalf("expected lost streak, got %+v", rec)
	}

	rec, err = svc.Revive(ctx, "u1")
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if rec.CurrentStreak != 5 {
		t.Fatalf("expected revived streak of 5, got %d", rec.CurrentStreak)
	}

	rec = complete(t, svc, "u1", at("2024-01-07", 9))
	if rec.CurrentStreak != 6 {
		t.Fatalf("expected streak 6, got %d", rec.CurrentStreak)
	}
}

func TestReviveRejectedAfterWindow(t *testing.T) {
	clock := newClock("2024-01-05", 20)
	svc, _ := newTestService(nil, clock)
	ctx := context.Background()
	complete(t, svc, "u1", at("2024-01-04", 9))
	complete(t, svc, "u1", at("2024-01-05", 9))

	clock.Set(at("2024-01-07", 8))
	if _, err := svc.DetectBreak(ctx, "u1"); err != nil {
		t.Fatalf("detect: %v", err)
	}

	clock.Set(at("2024-01-09", 9))
	if _, err := svc.Revive(ctx, "u1"); !errors.Is(err, domain.ErrReviveWindowExpired) {
		t.Fatalf("expected window expired, got %v", err)
	}
	rec, _ := svc.Get(ctx, "u1")
	if rec.CurrentStreak != 0 {
		t.Fatalf("streak must remain 0, got %d", rec.CurrentStreak)
	}
}

func TestRecalculateMatchesIncrementalAndSkipsInvalid(t *testing.T) {
	clock := newClock("2024-01-06", 22)
	svc, events := newTestService(nil, clock)
	ctx := context.Background()
	for _, ts := range []time.Time{at("2024-01-01", 8), at("2024-01-02", 8), at("2024-01-05", 7), at("2024-01-06", 9)} {
		complete(t, svc, "u1", ts)
	}
	folded, _ := svc.Get(ctx, "u1")

	_ = events.Append(ctx, domain.ActivityEvent{ID: "broken", UserID: "u1"})

	rec, err := svc.Recalculate(ctx, "u1")
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if rec.CurrentStreak != folded.CurrentStreak || rec.LongestStreak != folded.LongestStreak || rec.TotalQuizDays != folded.TotalQuizDays {
		t.Fatalf("recalculation diverged: %+v vs %+v", rec, folded)
	}
	if !rec.StreakStartDate.Equal(at("2024-01-05", 7)) {
		t.Fatalf("unexpected streak start %v", rec.StreakStartDate)
	}
}

func TestPlayedToday(t *testing.T) {
	clock := newClock("2024-01-02", 20)
	svc, _ := newTestService(nil, clock)
	ctx := context.Background()

	complete(t, svc, "u1", at("2024-01-01", 23))
	played, _, err := svc.PlayedToday(ctx, "u1")
	if err != nil || played {
		t.Fatalf("expected nothing today, got %v %v", played, err)
	}

	complete(t, svc, "u1", at("2024-01-02", 0))
	played, events, err := svc.PlayedToday(ctx, "u1")
	if err != nil || !played || len(events) != 1 {
		t.Fatalf("expected one event today, got %v %d %v", played, len(events), err)
	}
}

func TestLeaderboardRanksByCurrentStreak(t *testing.T) {
	clock := newClock("2024-01-03", 20)
	svc, _ := newTestService(nil, clock)

	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		complete(t, svc, "alice", at(d, 9))
	}
	complete(t, svc, "bob", at("2024-01-03", 9))
	complete(t, svc, "carol", at("2024-01-02", 9))
	complete(t, svc, "carol", at("2024-01-03", 9))

	lb, err := svc.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].UserID != "alice" || lb.Entries[1].UserID != "carol" || lb.Entries[2].Rank != 3 {
		t.Fatalf("unexpected ranking %+v", lb.Entries)
	}
}

func TestSweepBreaksStaleStreaks(t *testing.T) {
	clock := newClock("2024-01-02", 20)
	svc, _ := newTestService(nil, clock)
	complete(t, svc, "stale", at("2024-01-01", 9))
	complete(t, svc, "stale", at("2024-01-02", 9))
	complete(t, svc, "fresh", at("2024-01-02", 9))

	clock.Set(at("2024-01-04", 0))
	complete(t, svc, "fresh", at("2024-01-03", 9))
	if _, err := svc.Sweep(context.Background(), 10); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	stale, _ := svc.Get(context.Background(), "stale")
	if stale.CurrentStreak != 0 || !stale.CanRevive {
		t.Fatalf("expected stale streak broken, got %+v", stale)
	}
	fresh, _ := svc.Get(context.Background(), "fresh")
	if fresh.CurrentStreak != 2 {
		t.Fatalf("fresh streak should survive, got %+v", fresh)
	}
}
