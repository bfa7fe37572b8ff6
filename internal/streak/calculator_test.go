package streak

import (
	"testing"
	"time"

	"elsa-streak-service/internal/calendar"
)

var utc = calendar.New(time.UTC)

func TestComputeStreaksEmpty(t *testing.T) {
	got := ComputeStreaks(utc, nil, "2024-01-03")
	if got != (Metrics{}) {
		t.Fatalf("expected zero metrics, got %+v", got)
	}
}

func TestComputeStreaksLiveRun(t *testing.T) {
	got := ComputeStreaks(utc, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, "2024-01-03")
	want := Metrics{CurrentStreak: 3, LongestStreak: 3, TotalQuizDays: 3}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeStreaksRestartAfterGap(t *testing.T) {
	got := ComputeStreaks(utc, []string{"2024-01-01", "2024-01-02", "2024-01-05"}, "2024-01-05")
	want := Metrics{CurrentStreak: 1, LongestStreak: 2, TotalQuizDays: 3}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeStreaksYesterdayKeepsRunAlive(t *testing.T) {
	got := ComputeStreaks(utc, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, "2024-01-05")
	if got.CurrentStreak != 3 {
		t.Fatalf("expected run ending yesterday to count, got %+v", got)
	}
}

func TestComputeStreaksBrokenRun(t *testing.T) {
	got := ComputeStreaks(utc, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, "2024-01-07")
	want := Metrics{CurrentStreak: 0, LongestStreak: 5, TotalQuizDays: 5}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeStreaksLongestBeforeCurrent(t *testing.T) {
	dates := []string{
		"2024-02-10", "2024-02-11", "2024-02-12", "2024-02-13", "2024-02-14",
		"2024-02-25", "2024-02-26",
	}
	got := ComputeStreaks(utc, dates, "2024-02-26")
	if got.CurrentStreak != 2 || got.LongestStreak != 5 || got.TotalQuizDays != 7 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}

func TestComputeStreaksIsIdempotent(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-03", "2024-01-04"}
	first := ComputeStreaks(utc, dates, "2024-01-04")
	for i := 0; i < 3; i++ {
		if again := ComputeStreaks(utc, dates, "2024-01-04"); again != first {
			t.Fatalf("run %d drifted: %+v vs %+v", i, again, first)
		}
	}
	if dates[0] != "2024-01-01" || len(dates) != 3 {
		t.Fatalf("input must not be mutated: %v", dates)
	}
}

func TestDistinctDatesDeduplicatesSameDay(t *testing.T) {
	instants := []time.Time{
		time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
		{},
		time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
	}
	got := DistinctDates(utc, instants)
	if len(got) != 2 || got[0] != "2024-01-01" || got[1] != "2024-01-02" {
		t.Fatalf("unexpected dates %v", got)
	}

	metrics := ComputeStreaks(utc, got, "2024-01-02")
	if metrics.CurrentStreak != 2 || metrics.TotalQuizDays != 2 {
		t.Fatalf("same-day events must not double count, got %+v", metrics)
	}
}
