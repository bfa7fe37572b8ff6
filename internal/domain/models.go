package domain

import "time"

// Default entitlement limits applied by NewStreakRecord.
const (
	DefaultMaxFreezes = 3
	DefaultMaxRevives = 1
)

// ActivityEvent is one completed quiz attempt that counts towards a streak.
type ActivityEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	QuizID      string    `json:"quizId,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// StreakRecord is the durable per-user streak state.
type StreakRecord struct {
	UserID           string     `json:"userId"`
	CurrentStreak    int        `json:"currentStreak"`
	LongestStreak    int        `json:"longestStreak"`
	LastActivityDate time.Time  `json:"lastActivityDate"`
	StreakStartDate  time.Time  `json:"streakStartDate"`
	TotalQuizDays    int        `json:"totalQuizDays"`
	FreezesUsed      int        `json:"freezesUsed"`
	MaxFreezes       int        `json:"maxFreezes"`
	LastFreezeReset  time.Time  `json:"lastFreezeReset"`
	LastStreakLoss   *time.Time `json:"lastStreakLoss"`
	LostStreakLength int        `json:"lostStreakLength"`
	CanRevive        bool       `json:"canRevive"`
	ReviveExpiresAt  time.Time  `json:"reviveExpiresAt"`
	RevivesUsed      int        `json:"revivesUsed"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewStreakRecord returns the all-zero record a user starts with.
func NewStreakRecord(userID string) StreakRecord {
	return StreakRecord{
		UserID:     userID,
		MaxFreezes: DefaultMaxFreezes,
	}
}

// HasActivity reports whether anything has ever been folded into the record.
func (r StreakRecord) HasActivity() bool {
	return !r.LastActivityDate.IsZero()
}

// StreakView is the read model handed to UI consumers.
type StreakView struct {
	StreakRecord
	Today            string    `json:"today"`
	LastActiveDay    string    `json:"lastActiveDay"`
	NeedsQuizToday   bool      `json:"needsQuizToday"`
	IsInDanger       bool      `json:"isInDanger"`
	CanReviveNow     bool      `json:"canReviveNow"`
	FreezesRemaining int       `json:"freezesRemaining"`
	RevivesRemaining int       `json:"revivesRemaining"`
	Stale            bool      `json:"stale"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// LeaderboardEntry is one ranked row of the streak leaderboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	CurrentStreak int    `json:"currentStreak"`
	LongestStreak int    `json:"longestStreak"`
	TotalQuizDays int    `json:"totalQuizDays"`
}

// Leaderboard captures users ordered by current streak.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
