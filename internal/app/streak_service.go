package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"elsa-streak-service/internal/domain"
	"elsa-streak-service/internal/streak"
	"github.com/google/uuid"
)

// Options tunes how the service talks to its stores.
type Options struct {
	// MaxAttempts bounds retries of a transactional update after a conflict.
	MaxAttempts int
	// StoreTimeout caps every store call; zero disables the cap.
	StoreTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// StreakService applies streak transitions through transactional store updates.
type StreakService struct {
	records  RecordStore
	events   ActivityLog
	machine  streak.Machine
	attempts int
	timeout  time.Duration
	now      func() time.Time
}

func NewStreakService(records RecordStore, events ActivityLog, machine streak.Machine, opts Options) *StreakService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &StreakService{
		records:  records,
		events:   events,
		machine:  machine,
		attempts: opts.MaxAttempts,
		timeout:  opts.StoreTimeout,
		now:      opts.Now,
	}
}

// Machine exposes the transition rules, mostly so views share the calendar.
func (s *StreakService) Machine() streak.Machine {
	return s.machine
}

// Now returns the service clock.
func (s *StreakService) Now() time.Time {
	return s.now()
}

// Get reads the persisted record without applying any transition.
func (s *StreakService) Get(ctx context.Context, userID string) (domain.StreakRecord, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	rec, err := s.records.Get(callCtx, userID)
	if err != nil {
		return domain.StreakRecord{}, unavailable(err)
	}
	return rec, nil
}

// CompleteQuiz appends the event to the activity log and folds it into the record.
func (s *StreakService) CompleteQuiz(ctx context.Context, event domain.ActivityEvent) (domain.StreakRecord, streak.FoldResult, error) {
	if err := validateEvent(event); err != nil {
		return domain.StreakRecord{}, streak.FoldLate, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	callCtx, cancel := s.withTimeout(ctx)
	err := s.events.Append(callCtx, event)
	cancel()
	if err != nil {
		return domain.StreakRecord{}, streak.FoldLate, unavailable(err)
	}
	return s.FoldCompletion(ctx, event)
}

// FoldCompletion folds an already persisted event into the user's record.
func (s *StreakService) FoldCompletion(ctx context.Context, event domain.ActivityEvent) (domain.StreakRecord, streak.FoldResult, error) {
	if err := validateEvent(event); err != nil {
		return domain.StreakRecord{}, streak.FoldLate, err
	}

	var result streak.FoldResult
	rec, err := s.update(ctx, event.UserID, "complete", func(rec *domain.StreakRecord) error {
		next, _ := s.machine.DetectBreakAndOpenRevive(*rec, event.CompletedAt)
		next, result = s.machine.OnQuizCompleted(next, event.CompletedAt)
		*rec = next
		return nil
	})
	if err != nil {
		return domain.StreakRecord{}, result, err
	}
	if result == streak.FoldLate {
		log.Printf("activity event %s for %s predates last activity; left for recalculation", event.ID, event.UserID)
	}
	return rec, result, nil
}

// DetectBreak runs read-time break detection and persists only when it changed something.
func (s *StreakService) DetectBreak(ctx context.Context, userID string) (domain.StreakRecord, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return domain.StreakRecord{}, err
	}
	if _, changed := s.machine.DetectBreakAndOpenRevive(rec, s.now()); !changed {
		return rec, nil
	}
	return s.update(ctx, userID, "detect_break", func(rec *domain.StreakRecord) error {
		*rec, _ = s.machine.DetectBreakAndOpenRevive(*rec, s.now())
		return nil
	})
}

// UseFreeze spends one of the user's monthly freezes on today.
func (s *StreakService) UseFreeze(ctx context.Context, userID string) (domain.StreakRecord, error) {
	return s.update(ctx, userID, "freeze", func(rec *domain.StreakRecord) error {
		next, err := s.machine.UseStreakFreeze(*rec, s.now())
		if err != nil {
			return err
		}
		*rec = next
		return nil
	})
}

// Revive restores a just-lost streak.
func (s *StreakService) Revive(ctx context.Context, userID string) (domain.StreakRecord, error) {
	return s.update(ctx, userID, "revive", func(rec *domain.StreakRecord) error {
		next, err := s.machine.ReviveStreak(*rec, s.now())
		if err != nil {
			return err
		}
		*rec = next
		return nil
	})
}

// RollMonth applies the monthly entitlement reset if a new month has started.
func (s *StreakService) RollMonth(ctx context.Context, userID string) (domain.StreakRecord, error) {
	return s.update(ctx, userID, "roll_month", func(rec *domain.StreakRecord) error {
		*rec, _ = s.machine.RollMonth(*rec, s.now())
		return nil
	})
}

// Recalculate rebuilds the record from the user's full activity history.
func (s *StreakService) Recalculate(ctx context.Context, userID string) (domain.StreakRecord, error) {
	callCtx, cancel := s.withTimeout(ctx)
	history, err := s.events.History(callCtx, userID)
	cancel()
	if err != nil {
		return domain.StreakRecord{}, unavailable(err)
	}

	instants := make([]time.Time, 0, len(history))
	for _, event := range history {
		if event.UserID == "" {
			event.UserID = userID
		}
		if err := validateEvent(event); err != nil || event.UserID != userID {
			discardedEventsTotal.Inc()
			log.Printf("discarding activity event %q for %s: %v", event.ID, userID, domain.ErrInvalidActivityEvent)
			continue
		}
		instants = append(instants, event.CompletedAt)
	}

	return s.update(ctx, userID, "recalculate", func(rec *domain.StreakRecord) error {
		*rec = s.machine.RecalculateFromHistory(*rec, instants, s.now())
		return nil
	})
}

// PlayedToday reports whether the user completed any quiz during the current local day.
func (s *StreakService) PlayedToday(ctx context.Context, userID string) (bool, []domain.ActivityEvent, error) {
	start, end, err := s.machine.Calendar().DayBounds("", s.now())
	if err != nil {
		return false, nil, err
	}
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	events, err := s.events.Between(callCtx, userID, start, end)
	if err != nil {
		return false, nil, unavailable(err)
	}
	return len(events) > 0, events, nil
}

// Leaderboard ranks users by current streak, then longest streak, then user ID.
func (s *StreakService) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	records, err := s.records.Top(callCtx, limit)
	if err != nil {
		return domain.Leaderboard{}, unavailable(err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CurrentStreak != records[j].CurrentStreak {
			return records[i].CurrentStreak > records[j].CurrentStreak
		}
		if records[i].LongestStreak != records[j].LongestStreak {
			return records[i].LongestStreak > records[j].LongestStreak
		}
		return records[i].UserID < records[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(records))
	for i, rec := range records {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        rec.UserID,
			CurrentStreak: rec.CurrentStreak,
			LongestStreak: rec.LongestStreak,
			TotalQuizDays: rec.TotalQuizDays,
		})
	}
	return domain.Leaderboard{Entries: entries, UpdatedAt: s.now()}, nil
}

// Sweep runs break detection and the monthly reset for the top limit users so
// stale streaks do not keep their leaderboard rank. It returns how many records changed.
func (s *StreakService) Sweep(ctx context.Context, limit int) (int, error) {
	callCtx, cancel := s.withTimeout(ctx)
	records, err := s.records.Top(callCtx, limit)
	cancel()
	if err != nil {
		return 0, unavailable(err)
	}

	changed := 0
	for _, rec := range records {
		now := s.now()
		_, broke := s.machine.DetectBreakAndOpenRevive(rec, now)
		_, rolled := s.machine.RollMonth(rec, now)
		if !broke && !rolled {
			continue
		}
		_, err := s.update(ctx, rec.UserID, "sweep", func(r *domain.StreakRecord) error {
			*r, _ = s.machine.DetectBreakAndOpenRevive(*r, s.now())
			*r, _ = s.machine.RollMonth(*r, s.now())
			return nil
		})
		if err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// update runs fn transactionally, retrying conflicts up to the attempt budget.
// fn may run more than once.
func (s *StreakService) update(ctx context.Context, userID, transition string, fn UpdateFunc) (domain.StreakRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		callCtx, cancel := s.withTimeout(ctx)
		rec, err := s.records.Update(callCtx, userID, fn)
		cancel()

		switch {
		case err == nil:
			transitionsTotal.WithLabelValues(transition, "ok").Inc()
			return rec, nil
		case domain.IsRuleViolation(err):
			transitionsTotal.WithLabelValues(transition, "rejected").Inc()
			return domain.StreakRecord{}, err
		case errors.Is(err, domain.ErrConcurrentUpdateConflict):
			storeRetriesTotal.Inc()
			lastErr = err
			if ctx.Err() != nil {
				return domain.StreakRecord{}, unavailable(ctx.Err())
			}
		default:
			transitionsTotal.WithLabelValues(transition, "error").Inc()
			return domain.StreakRecord{}, unavailable(err)
		}
	}
	transitionsTotal.WithLabelValues(transition, "error").Inc()
	return domain.StreakRecord{}, fmt.Errorf("%w: %s for %s gave up after %d attempts: %w",
		domain.ErrStoreUnavailable, transition, userID, s.attempts, lastErr)
}

func (s *StreakService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func validateEvent(event domain.ActivityEvent) error {
	if event.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidActivityEvent)
	}
	if event.CompletedAt.IsZero() {
		return fmt.Errorf("%w: missing completedAt", domain.ErrInvalidActivityEvent)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
