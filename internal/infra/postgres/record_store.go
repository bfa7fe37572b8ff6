package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
	"github.com/uptrace/bun"
)

type streakRow struct {
	bun.BaseModel `bun:"table:user_streaks,alias:us"`

	UserID           string     `bun:"user_id,pk"`
	CurrentStreak    int        `bun:"current_streak,notnull"`
	LongestStreak    int        `bun:"longest_streak,notnull"`
	LastActivityDate *time.Time `bun:"last_activity_date"`
	StreakStartDate  *time.Time `bun:"streak_start_date"`
	TotalQuizDays    int        `bun:"total_quiz_days,notnull"`
	FreezesUsed      int        `bun:"freezes_used,notnull"`
	MaxFreezes       int        `bun:"max_freezes,notnull"`
	LastFreezeReset  *time.Time `bun:"last_freeze_reset"`
	LastStreakLoss   *time.Time `bun:"last_streak_loss"`
	LostStreakLength int        `bun:"lost_streak_length,notnull"`
	CanRevive        bool       `bun:"can_revive,notnull"`
	ReviveExpiresAt  *time.Time `bun:"revive_expires_at"`
	RevivesUsed      int        `bun:"revives_used,notnull"`
	Version          int64      `bun:"version,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

// RecordStore persists streak records in user_streaks. Writes are guarded by
// an optimistic version column: an update only lands if nobody bumped the
// version since it was read.
type RecordStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewRecordStore(db *bun.DB) *RecordStore {
	return &RecordStore{db: db, clock: time.Now}
}

func (s *RecordStore) Get(ctx context.Context, userID string) (domain.StreakRecord, error) {
	row, err := s.load(ctx, userID)
	if err != nil {
		return domain.StreakRecord{}, err
	}
	return row.record(), nil
}

func (s *RecordStore) Update(ctx context.Context, userID string, fn app.UpdateFunc) (domain.StreakRecord, error) {
	row, err := s.load(ctx, userID)
	if err != nil {
		return domain.StreakRecord{}, err
	}
	rec := row.record()
	if err := fn(&rec); err != nil {
		return domain.StreakRecord{}, err
	}
	rec.UserID = userID
	rec.UpdatedAt = s.clock()

	next := rowFromRecord(rec)
	next.Version = row.Version + 1
	res, err := s.db.NewUpdate().
		Model(&next).
		WherePK().
		Where("version = ?", row.Version).
		Exec(ctx)
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("update streak record %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.StreakRecord{}, domain.ErrConcurrentUpdateConflict
	}
	return rec, nil
}

func (s *RecordStore) Top(ctx context.Context, limit int) ([]domain.StreakRecord, error) {
	var rows []streakRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("current_streak DESC, user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]domain.StreakRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// load reads the row, inserting the zero record first if the user has none.
func (s *RecordStore) load(ctx context.Context, userID string) (streakRow, error) {
	row := streakRow{UserID: userID}
	err := s.db.NewSelect().Model(&row).WherePK().Scan(ctx)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return streakRow{}, fmt.Errorf("read streak record %s: %w", userID, err)
	}

	fresh := domain.NewStreakRecord(userID)
	fresh.UpdatedAt = s.clock()
	row = rowFromRecord(fresh)
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (user_id) DO NOTHING").Exec(ctx); err != nil {
		return streakRow{}, fmt.Errorf("create streak record %s: %w", userID, err)
	}
	row = streakRow{UserID: userID}
	if err := s.db.NewSelect().Model(&row).WherePK().Scan(ctx); err != nil {
		return streakRow{}, fmt.Errorf("read streak record %s: %w", userID, err)
	}
	return row, nil
}

func (r streakRow) record() domain.StreakRecord {
	return domain.StreakRecord{
		UserID:           r.UserID,
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		LastActivityDate: deref(r.LastActivityDate),
		StreakStartDate:  deref(r.StreakStartDate),
		TotalQuizDays:    r.TotalQuizDays,
		FreezesUsed:      r.FreezesUsed,
		MaxFreezes:       r.MaxFreezes,
		LastFreezeReset:  deref(r.LastFreezeReset),
		LastStreakLoss:   r.LastStreakLoss,
		LostStreakLength: r.LostStreakLength,
		CanRevive:        r.CanRevive,
		ReviveExpiresAt:  deref(r.ReviveExpiresAt),
		RevivesUsed:      r.RevivesUsed,
		UpdatedAt:        r.UpdatedAt,
	}
}

func rowFromRecord(rec domain.StreakRecord) streakRow {
	return streakRow{
		UserID:           rec.UserID,
		CurrentStreak:    rec.CurrentStreak,
		LongestStreak:    rec.LongestStreak,
		LastActivityDate: ref(rec.LastActivityDate),
		StreakStartDate:  ref(rec.StreakStartDate),
		TotalQuizDays:    rec.TotalQuizDays,
		FreezesUsed:      rec.FreezesUsed,
		MaxFreezes:       rec.MaxFreezes,
		LastFreezeReset:  ref(rec.LastFreezeReset),
		LastStreakLoss:   rec.LastStreakLoss,
		LostStreakLength: rec.LostStreakLength,
		CanRevive:        rec.CanRevive,
		ReviveExpiresAt:  ref(rec.ReviveExpiresAt),
		RevivesUsed:      rec.RevivesUsed,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func ref(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
