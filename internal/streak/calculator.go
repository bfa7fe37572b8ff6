// Package streak derives daily streak metrics and owns every transition of a
// domain.StreakRecord. Nothing here performs I/O.
package streak

import (
	"sort"
	"time"

	"elsa-streak-service/internal/calendar"
)

// Metrics is the result of a full scan over distinct activity dates.
type Metrics struct {
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`
	TotalQuizDays int `json:"totalQuizDays"`
}

// ComputeStreaks scans dates, which must be distinct and sorted ascending.
// The current streak survives while the most recent date is today or yesterday.
func ComputeStreaks(cal calendar.Calendar, dates []string, today string) Metrics {
	if len(dates) == 0 {
		return Metrics{}
	}

	longest, run := 0, 1
	for i := 1; i < len(dates); i++ {
		if cal.AreConsecutive(dates[i-1], dates[i]) {
			run++
			continue
		}
		longest = max(longest, run)
		run = 1
	}
	longest = max(longest, run)

	current := 0
	mostRecent := dates[len(dates)-1]
	if mostRecent == today || cal.AreConsecutive(mostRecent, today) {
		current = trailingRun(cal, dates)
	}

	return Metrics{
		CurrentStreak: current,
		LongestStreak: longest,
		TotalQuizDays: len(dates),
	}
}

// trailingRun counts the consecutive dates ending at the last element.
func trailingRun(cal calendar.Calendar, dates []string) int {
	if len(dates) == 0 {
		return 0
	}
	n := 1
	for i := len(dates) - 1; i > 0; i-- {
		if !cal.AreConsecutive(dates[i-1], dates[i]) {
			break
		}
		n++
	}
	return n
}

// DistinctDates renders instants as local dates, dropping duplicates and zero
// instants, and sorts them ascending.
func DistinctDates(cal calendar.Calendar, instants []time.Time) []string {
	seen := make(map[string]struct{}, len(instants))
	dates := make([]string, 0, len(instants))
	for _, t := range instants {
		d := cal.LocalDate(t)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	// YYYY-MM-DD sorts lexically in date order.
	sort.Strings(dates)
	return dates
}
