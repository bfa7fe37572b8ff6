package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type streakDoc struct {
	UserID           string     `firestore:"userId"`
	CurrentStreak    int        `firestore:"currentStreak"`
	LongestStreak    int        `firestore:"longestStreak"`
	LastActivityDate *time.Time `firestore:"lastActivityDate"`
	StreakStartDate  *time.Time `firestore:"streakStartDate"`
	TotalQuizDays    int        `firestore:"totalQuizDays"`
	FreezesUsed      int        `firestore:"freezesUsed"`
	MaxFreezes       int        `firestore:"maxFreezes"`
	LastFreezeReset  *time.Time `firestore:"lastFreezeReset"`
	LastStreakLoss   *time.Time `firestore:"lastStreakLoss"`
	LostStreakLength int        `firestore:"lostStreakLength"`
	CanRevive        bool       `firestore:"canRevive"`
	ReviveExpiresAt  *time.Time `firestore:"reviveExpiresAt"`
	RevivesUsed      int        `firestore:"revivesUsed"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
}

// RecordStore keeps one document per user under userStreaks/{userId}.
type RecordStore struct {
	client *firestore.Client
	clock  func() time.Time
}

func NewRecordStore(client *firestore.Client) *RecordStore {
	return &RecordStore{client: client, clock: time.Now}
}

func (s *RecordStore) Get(ctx context.Context, userID string) (domain.StreakRecord, error) {
	ref := s.client.Collection(streaksCollection).Doc(userID)
	snap, err := ref.Get(ctx)
	if err == nil {
		return decode(snap)
	}
	if status.Code(err) != codes.NotFound {
		return domain.StreakRecord{}, fmt.Errorf("read streak record %s: %w", userID, err)
	}

	fresh := domain.NewStreakRecord(userID)
	fresh.UpdatedAt = s.clock()
	if _, err := ref.Create(ctx, docFromRecord(fresh)); err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return domain.StreakRecord{}, fmt.Errorf("create streak record %s: %w", userID, err)
		}
		snap, err := ref.Get(ctx)
		if err != nil {
			return domain.StreakRecord{}, fmt.Errorf("read streak record %s: %w", userID, err)
		}
		return decode(snap)
	}
	return fresh, nil
}

// Update runs fn inside a single-attempt Firestore transaction. A commit that
// loses to a concurrent writer surfaces as ErrConcurrentUpdateConflict.
func (s *RecordStore) Update(ctx context.Context, userID string, fn app.UpdateFunc) (domain.StreakRecord, error) {
	ref := s.client.Collection(streaksCollection).Doc(userID)
	var (
		out   domain.StreakRecord
		fnErr error
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rec := domain.NewStreakRecord(userID)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if rec, err = decode(snap); err != nil {
				return err
			}
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		if fnErr = fn(&rec); fnErr != nil {
			return fnErr
		}
		rec.UserID = userID
		rec.UpdatedAt = s.clock()
		out = rec
		return tx.Set(ref, docFromRecord(rec))
	}, firestore.MaxAttempts(1))

	switch {
	case fnErr != nil:
		return domain.StreakRecord{}, fnErr
	case err == nil:
		return out, nil
	case status.Code(err) == codes.Aborted:
		return domain.StreakRecord{}, domain.ErrConcurrentUpdateConflict
	default:
		return domain.StreakRecord{}, fmt.Errorf("update streak record %s: %w", userID, err)
	}
}

func (s *RecordStore) Top(ctx context.Context, limit int) ([]domain.StreakRecord, error) {
	q := s.client.Collection(streaksCollection).OrderBy("currentStreak", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]domain.StreakRecord, 0, len(snaps))
	for _, snap := range snaps {
		rec, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decode(snap *firestore.DocumentSnapshot) (domain.StreakRecord, error) {
	var doc streakDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.StreakRecord{}, fmt.Errorf("decode streak record %s: %w", snap.Ref.ID, err)
	}
	if doc.UserID == "" {
		doc.UserID = snap.Ref.ID
	}
	return doc.record(), nil
}

func (d streakDoc) record() domain.StreakRecord {
	return domain.StreakRecord{
		UserID:           d.UserID,
		CurrentStreak:    d.CurrentStreak,
		LongestStreak:    d.LongestStreak,
		LastActivityDate: timeVal(d.LastActivityDate),
		StreakStartDate:  timeVal(d.StreakStartDate),
		TotalQuizDays:    d.TotalQuizDays,
		FreezesUsed:      d.FreezesUsed,
		MaxFreezes:       d.MaxFreezes,
		LastFreezeReset:  timeVal(d.LastFreezeReset),
		LastStreakLoss:   d.LastStreakLoss,
		LostStreakLength: d.LostStreakLength,
		CanRevive:        d.CanRevive,
		ReviveExpiresAt:  timeVal(d.ReviveExpiresAt),
		RevivesUsed:      d.RevivesUsed,
		UpdatedAt:        d.UpdatedAt,
	}
}

func docFromRecord(rec domain.StreakRecord) streakDoc {
	return streakDoc{
		UserID:           rec.UserID,
		CurrentStreak:    rec.CurrentStreak,
		LongestStreak:    rec.LongestStreak,
		LastActivityDate: timePtr(rec.LastActivityDate),
		StreakStartDate:  timePtr(rec.StreakStartDate),
		TotalQuizDays:    rec.TotalQuizDays,
		FreezesUsed:      rec.FreezesUsed,
		MaxFreezes:       rec.MaxFreezes,
		LastFreezeReset:  timePtr(rec.LastFreezeReset),
		LastStreakLoss:   rec.LastStreakLoss,
		LostStreakLength: rec.LostStreakLength,
		CanRevive:        rec.CanRevive,
		ReviveExpiresAt:  timePtr(rec.ReviveExpiresAt),
		RevivesUsed:      rec.RevivesUsed,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
