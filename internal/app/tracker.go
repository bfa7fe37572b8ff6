package app

import (
	"context"
	"sync"
	"time"

	"elsa-streak-service/internal/domain"
	"elsa-streak-service/internal/streak"
	"golang.org/x/sync/singleflight"
)

// Tracker is what UI-facing code talks to. It caches one view per user for the
// local calendar day it was fetched on and fans out fresh views to subscribers.
type Tracker struct {
	service *StreakService
	sf      singleflight.Group

	mu          sync.RWMutex
	cache       map[string]cachedView
	generations map[string]uint64
	subscribers map[string]map[chan domain.StreakView]struct{}
}

type cachedView struct {
	view domain.StreakView
	day  string
}

func NewTracker(service *StreakService) *Tracker {
	return &Tracker{
		service:     service,
		cache:       make(map[string]cachedView),
		generations: make(map[string]uint64),
		subscribers: make(map[string]map[chan domain.StreakView]struct{}),
	}
}

// Service returns the underlying streak service.
func (t *Tracker) Service() *StreakService {
	return t.service
}

// Load returns today's cached view, or fetches, runs break detection and caches.
// On a store failure the last good view is returned marked stale together with the error.
func (t *Tracker) Load(ctx context.Context, userID string) (domain.StreakView, error) {
	today := t.today()

	t.mu.RLock()
	entry, ok := t.cache[userID]
	t.mu.RUnlock()
	if ok && entry.day == today && !entry.view.Stale {
		return entry.view, nil
	}

	// The shared fetch outlives any single caller; the store timeout still bounds it.
	fetch := t.sf.DoChan(userID, func() (interface{}, error) {
		t.mu.RLock()
		gen := t.generations[userID]
		t.mu.RUnlock()

		rec, err := t.service.DetectBreak(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		view := t.viewOf(rec)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.generations[userID] != gen {
			// A write published while we were reading; its view is newer.
			if entry, ok := t.cache[userID]; ok {
				return entry.view, nil
			}
		}
		t.cache[userID] = cachedView{view: view, day: view.Today}
		return view, nil
	})

	select {
	case res := <-fetch:
		if res.Err != nil {
			return t.markStale(userID), res.Err
		}
		return res.Val.(domain.StreakView), nil
	case <-ctx.Done():
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.cache[userID].view, ctx.Err()
	}
}

// Refresh bypasses the cache and broadcasts the fetched view to every subscriber of userID.
func (t *Tracker) Refresh(ctx context.Context, userID string) (domain.StreakView, error) {
	t.mu.RLock()
	gen := t.generations[userID]
	t.mu.RUnlock()

	rec, err := t.service.DetectBreak(ctx, userID)
	if err != nil {
		return t.markStale(userID), err
	}
	return t.publishSince(rec, gen), nil
}

// CompleteQuiz records a completion and broadcasts the new view.
func (t *Tracker) CompleteQuiz(ctx context.Context, event domain.ActivityEvent) (domain.StreakView, streak.FoldResult, error) {
	rec, result, err := t.service.CompleteQuiz(ctx, event)
	if err != nil {
		return t.failed(event.UserID, err), result, err
	}
	return t.publish(rec), result, nil
}

// UseFreeze spends a freeze and broadcasts the new view.
func (t *Tracker) UseFreeze(ctx context.Context, userID string) (domain.StreakView, error) {
	rec, err := t.service.UseFreeze(ctx, userID)
	if err != nil {
		return t.failed(userID, err), err
	}
	return t.publish(rec), nil
}

// Revive restores a lost streak and broadcasts the new view.
func (t *Tracker) Revive(ctx context.Context, userID string) (domain.StreakView, error) {
	rec, err := t.service.Revive(ctx, userID)
	if err != nil {
		return t.failed(userID, err), err
	}
	return t.publish(rec), nil
}

// Recalculate repairs the record from history and broadcasts the new view.
func (t *Tracker) Recalculate(ctx context.Context, userID string) (domain.StreakView, error) {
	rec, err := t.service.Recalculate(ctx, userID)
	if err != nil {
		return t.failed(userID, err), err
	}
	return t.publish(rec), nil
}

// Subscribe returns a channel of views for userID, primed with today's cached view
// when there is one. The caller must invoke the returned cancel function to avoid leaks.
func (t *Tracker) Subscribe(userID string) (<-chan domain.StreakView, func()) {
	ch := make(chan domain.StreakView, 8)

	t.mu.Lock()
	subs, ok := t.subscribers[userID]
	if !ok {
		subs = make(map[chan domain.StreakView]struct{})
		t.subscribers[userID] = subs
	}
	subs[ch] = struct{}{}
	if entry, ok := t.cache[userID]; ok && entry.day == t.today() {
		ch <- entry.view
	}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if subs, ok := t.subscribers[userID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(t.subscribers, userID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount reports how many consumers are attached to userID.
func (t *Tracker) SubscriberCount(userID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers[userID])
}

// NeedsQuizToday reports whether the user's last active day was yesterday.
func (t *Tracker) NeedsQuizToday(ctx context.Context, userID string) (bool, error) {
	view, err := t.Load(ctx, userID)
	return view.NeedsQuizToday, err
}

// IsInDanger reports whether more than one day has passed since the last active day.
func (t *Tracker) IsInDanger(ctx context.Context, userID string) (bool, error) {
	view, err := t.Load(ctx, userID)
	return view.IsInDanger, err
}

// CanRevive reports whether a revive would currently be accepted on timing grounds.
func (t *Tracker) CanRevive(ctx context.Context, userID string) (bool, error) {
	view, err := t.Load(ctx, userID)
	return view.CanReviveNow, err
}

func (t *Tracker) publish(rec domain.StreakRecord) domain.StreakView {
	view := t.viewOf(rec)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.broadcastLocked(view)
}

// publishSince broadcasts rec unless another write was published after gen was
// read, in which case the newer cached view wins.
func (t *Tracker) publishSince(rec domain.StreakRecord, gen uint64) domain.StreakView {
	view := t.viewOf(rec)

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.cache[rec.UserID]; ok && t.generations[rec.UserID] != gen {
		return entry.view
	}
	return t.broadcastLocked(view)
}

func (t *Tracker) broadcastLocked(view domain.StreakView) domain.StreakView {
	rec := view.StreakRecord
	t.cache[rec.UserID] = cachedView{view: view, day: view.Today}
	t.generations[rec.UserID]++
	for ch := range t.subscribers[rec.UserID] {
		select {
		case ch <- view:
		default:
			// Slow consumer: drop its oldest pending view so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	broadcastsTotal.Inc()
	return view
}

// failed keeps the cached view for I/O errors; rule violations leave it untouched.
func (t *Tracker) failed(userID string, err error) domain.StreakView {
	if domain.IsRuleViolation(err) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.cache[userID].view
	}
	return t.markStale(userID)
}

func (t *Tracker) markStale(userID string) domain.StreakView {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache[userID]
	if !ok {
		return domain.StreakView{}
	}
	entry.view.Stale = true
	t.cache[userID] = entry
	return entry.view
}

func (t *Tracker) today() string {
	return t.service.Machine().Calendar().Today(t.service.Now())
}

func (t *Tracker) viewOf(rec domain.StreakRecord) domain.StreakView {
	return BuildView(t.service.Machine(), rec, t.service.Now())
}

// BuildView derives the UI booleans for rec as of now.
func BuildView(machine streak.Machine, rec domain.StreakRecord, now time.Time) domain.StreakView {
	cal := machine.Calendar()
	today := cal.Today(now)
	last := cal.LocalDate(rec.LastActivityDate)

	// Entitlements as they would be after a pending monthly reset.
	rolled, _ := machine.RollMonth(rec, now)

	view := domain.StreakView{
		StreakRecord:     rec,
		Today:            today,
		LastActiveDay:    last,
		NeedsQuizToday:   last != "" && last == cal.Yesterday(now),
		CanReviveNow:     rec.CanRevive && now.Before(rec.ReviveExpiresAt),
		FreezesRemaining: max(rolled.MaxFreezes-rolled.FreezesUsed, 0),
		RevivesRemaining: max(machine.Policy().MaxRevives-rolled.RevivesUsed, 0),
		FetchedAt:        now,
	}
	if gap, ok := cal.DaysBetween(last, today); ok && gap > 1 {
		view.IsInDanger = true
	}
	return view
}
