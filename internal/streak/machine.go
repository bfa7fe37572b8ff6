package streak

import (
	"sort"
	"time"

	"elsa-streak-service/internal/calendar"
	"elsa-streak-service/internal/domain"
)

// DefaultReviveWindow is how long a broken streak stays revivable.
const DefaultReviveWindow = 48 * time.Hour

// Policy holds the product-configurable entitlement constants.
type Policy struct {
	MaxFreezes          int
	MaxRevives          int
	ReviveWindow        time.Duration
	ResetRevivesMonthly bool
}

// DefaultPolicy returns 3 freezes a month, one revive a month and a 48h window.
func DefaultPolicy() Policy {
	return Policy{
		MaxFreezes:          domain.DefaultMaxFreezes,
		MaxRevives:          domain.DefaultMaxRevives,
		ReviveWindow:        DefaultReviveWindow,
		ResetRevivesMonthly: true,
	}
}

// Machine applies transitions to streak records. Each method takes the record
// by value and returns the next one, so a rejected transition leaves the caller's
// copy untouched.
type Machine struct {
	cal    calendar.Calendar
	policy Policy
}

func NewMachine(cal calendar.Calendar, policy Policy) Machine {
	if policy.ReviveWindow <= 0 {
		policy.ReviveWindow = DefaultReviveWindow
	}
	if policy.MaxFreezes < 0 {
		policy.MaxFreezes = 0
	}
	return Machine{cal: cal, policy: policy}
}

// Calendar returns the calendar dates are evaluated in.
func (m Machine) Calendar() calendar.Calendar {
	return m.cal
}

// Policy returns the entitlement constants in force.
func (m Machine) Policy() Policy {
	return m.policy
}

// FoldResult describes what OnQuizCompleted did with an event.
type FoldResult int

const (
	// FoldSameDay means the day was already counted.
	FoldSameDay FoldResult = iota
	// FoldFirst started the very first streak.
	FoldFirst
	// FoldExtended added a consecutive day.
	FoldExtended
	// FoldRestarted began a new run after a gap.
	FoldRestarted
	// FoldLate means the event predates the last counted day and was not folded.
	FoldLate
)

func (r FoldResult) String() string {
	switch r {
	case FoldSameDay:
		return "same_day"
	case FoldFirst:
		return "first"
	case FoldExtended:
		return "extended"
	case FoldRestarted:
		return "restarted"
	case FoldLate:
		return "late"
	}
	return "unknown"
}

// OnQuizCompleted folds one completion into rec without rescanning history.
func (m Machine) OnQuizCompleted(rec domain.StreakRecord, completedAt time.Time) (domain.StreakRecord, FoldResult) {
	rec = m.normalize(rec)
	completedDate := m.cal.LocalDate(completedAt)
	lastDate := m.cal.LocalDate(rec.LastActivityDate)

	switch {
	case lastDate == "":
		rec.CurrentStreak = 1
		rec.LongestStreak = max(rec.LongestStreak, 1)
		rec.TotalQuizDays = 1
		rec.StreakStartDate = completedAt
		rec.LastActivityDate = completedAt
		clearRevive(&rec)
		return rec, FoldFirst

	case completedDate == lastDate:
		if completedAt.After(rec.LastActivityDate) {
			rec.LastActivityDate = completedAt
		}
		return rec, FoldSameDay

	case completedDate < lastDate:
		return rec, FoldLate

	case m.cal.AreConsecutive(lastDate, completedDate):
		if rec.CurrentStreak == 0 {
			rec.StreakStartDate = completedAt
		}
		rec.CurrentStreak++
		rec.LongestStreak = max(rec.LongestStreak, rec.CurrentStreak)
		rec.TotalQuizDays++
		rec.LastActivityDate = completedAt
		clearRevive(&rec)
		return rec, FoldExtended

	default:
		rec.CurrentStreak = 1
		rec.LongestStreak = max(rec.LongestStreak, 1)
		rec.TotalQuizDays++
		rec.LastActivityDate = completedAt
		rec.StreakStartDate = completedAt
		// A fresh run cannot coexist with an open revive window.
		clearRevive(&rec)
		return rec, FoldRestarted
	}
}

// DetectBreakAndOpenRevive zeroes a streak whose last day is two or more days
// before today and opens the revive window, then closes an expired window.
// Running it twice in a row changes nothing the second time.
func (m Machine) DetectBreakAndOpenRevive(rec domain.StreakRecord, now time.Time) (domain.StreakRecord, bool) {
	rec = m.normalize(rec)
	changed := false

	if rec.CurrentStreak > 0 {
		gap, ok := m.cal.DaysBetween(m.cal.LocalDate(rec.LastActivityDate), m.cal.Today(now))
		if ok && gap >= 2 {
			lostAt := now
			rec.LostStreakLength = rec.CurrentStreak
			rec.CurrentStreak = 0
			rec.CanRevive = true
			rec.ReviveExpiresAt = now.Add(m.policy.ReviveWindow)
			rec.LastStreakLoss = &lostAt
			changed = true
		}
	}

	if rec.CanRevive && !now.Before(rec.ReviveExpiresAt) {
		rec.CanRevive = false
		changed = true
	}
	return rec, changed
}

// RollMonth resets monthly entitlements once now is in a later calendar month
// than the last reset.
func (m Machine) RollMonth(rec domain.StreakRecord, now time.Time) (domain.StreakRecord, bool) {
	rec = m.normalize(rec)
	if rec.LastFreezeReset.IsZero() {
		rec.LastFreezeReset = now
		return rec, true
	}
	if !m.cal.LaterMonth(rec.LastFreezeReset, now) {
		return rec, false
	}
	rec.FreezesUsed = 0
	if m.policy.ResetRevivesMonthly {
		rec.RevivesUsed = 0
	}
	rec.LastFreezeReset = now
	return rec, true
}

// UseStreakFreeze spends one freeze to mark today as covered.
func (m Machine) UseStreakFreeze(rec domain.StreakRecord, now time.Time) (domain.StreakRecord, error) {
	rec, _ = m.RollMonth(rec, now)
	if rec.FreezesUsed >= rec.MaxFreezes {
		return rec, domain.ErrFreezeExhausted
	}
	rec.FreezesUsed++
	rec.LastActivityDate = now
	return rec, nil
}

// ReviveStreak restores a lost streak while the revive window is open. The last
// activity is back-dated to the end of yesterday so a quiz today extends the run.
func (m Machine) ReviveStreak(rec domain.StreakRecord, now time.Time) (domain.StreakRecord, error) {
	rec, _ = m.RollMonth(rec, now)
	if !rec.CanRevive && rec.LastStreakLoss == nil {
		return rec, domain.ErrReviveNotEligible
	}
	if !now.Before(rec.ReviveExpiresAt) {
		return rec, domain.ErrReviveWindowExpired
	}
	if !rec.CanRevive {
		return rec, domain.ErrReviveNotEligible
	}
	if rec.RevivesUsed >= m.policy.MaxRevives {
		return rec, domain.ErrReviveQuotaExhausted
	}

	rec.CurrentStreak = rec.LostStreakLength
	rec.LongestStreak = max(rec.LongestStreak, rec.CurrentStreak)
	rec.RevivesUsed++
	rec.LastActivityDate = m.cal.EndOfYesterday(now)
	clearRevive(&rec)
	return rec, nil
}

// RecalculateFromHistory rebuilds the counting fields of rec from the full list
// of completion instants. Zero instants must be filtered out by the caller.
// Freeze and revive counters are left alone.
func (m Machine) RecalculateFromHistory(rec domain.StreakRecord, instants []time.Time, now time.Time) domain.StreakRecord {
	rec = m.normalize(rec)
	dates := DistinctDates(m.cal, instants)
	metrics := ComputeStreaks(m.cal, dates, m.cal.Today(now))

	rec.CurrentStreak = metrics.CurrentStreak
	rec.LongestStreak = metrics.LongestStreak
	rec.TotalQuizDays = metrics.TotalQuizDays
	rec.LastActivityDate = time.Time{}
	rec.StreakStartDate = time.Time{}
	if len(dates) == 0 {
		return rec
	}

	sorted := make([]time.Time, 0, len(instants))
	for _, t := range instants {
		if !t.IsZero() {
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	rec.LastActivityDate = sorted[len(sorted)-1]

	runStart := dates[len(dates)-trailingRun(m.cal, dates)]
	for _, t := range sorted {
		if m.cal.LocalDate(t) == runStart {
			rec.StreakStartDate = t
			break
		}
	}

	if rec.CurrentStreak > 0 && rec.CanRevive {
		clearRevive(&rec)
	}
	return rec
}

// normalize fills limits a partially populated record may lack.
func (m Machine) normalize(rec domain.StreakRecord) domain.StreakRecord {
	if rec.MaxFreezes != m.policy.MaxFreezes {
		rec.MaxFreezes = m.policy.MaxFreezes
	}
	if rec.FreezesUsed > rec.MaxFreezes {
		rec.FreezesUsed = rec.MaxFreezes
	}
	return rec
}

func clearRevive(rec *domain.StreakRecord) {
	rec.CanRevive = false
	rec.ReviveExpiresAt = time.Time{}
	rec.LastStreakLoss = nil
}
