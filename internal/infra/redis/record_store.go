package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "streak:leaderboard"

// RecordStore keeps one JSON document per user and mirrors the current streak
// into a sorted set for the leaderboard:
//
//	SET  streak:record:{userID} {json}
//	ZADD streak:leaderboard {currentStreak} {userID}
//
// Updates use WATCH/MULTI so a concurrent writer aborts the transaction.
type RecordStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRecordStore(client *redis.Client) *RecordStore {
	return &RecordStore{client: client, clock: time.Now}
}

func (s *RecordStore) Get(ctx context.Context, userID string) (domain.StreakRecord, error) {
	rec, found, err := s.read(ctx, s.client, userID)
	if err != nil {
		return domain.StreakRecord{}, err
	}
	if found {
		return rec, nil
	}

	rec.UpdatedAt = s.clock()
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("encode streak record: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.recordKey(userID), data, 0).Result()
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("create streak record: %w", err)
	}
	if !created {
		// Another writer got there first.
		rec, _, err = s.read(ctx, s.client, userID)
		return rec, err
	}
	if err := s.client.ZAddNX(ctx, leaderboardKey, redis.Z{Score: 0, Member: userID}).Err(); err != nil {
		log.Printf("seed leaderboard entry for %s: %v", userID, err)
	}
	return rec, nil
}

func (s *RecordStore) Update(ctx context.Context, userID string, fn app.UpdateFunc) (domain.StreakRecord, error) {
	key := s.recordKey(userID)
	var out domain.StreakRecord

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, _, err := s.read(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.UserID = userID
		rec.UpdatedAt = s.clock()
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode streak record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(rec.CurrentStreak), Member: userID})
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.StreakRecord{}, domain.ErrConcurrentUpdateConflict
	}
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("update streak record %s: %w", userID, err)
	}
	return out, nil
}

func (s *RecordStore) Top(ctx context.Context, limit int) ([]domain.StreakRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, leaderboardKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard records: %w", err)
	}

	out := make([]domain.StreakRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.StreakRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode streak record %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// getter is satisfied by both the client and a watching tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RecordStore) read(ctx context.Context, c getter, userID string) (domain.StreakRecord, bool, error) {
	data, err := c.Get(ctx, s.recordKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewStreakRecord(userID), false, nil
	}
	if err != nil {
		return domain.StreakRecord{}, false, fmt.Errorf("read streak record %s: %w", userID, err)
	}
	var rec domain.StreakRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.StreakRecord{}, false, fmt.Errorf("decode streak record %s: %w", userID, err)
	}
	return rec, true, nil
}

func (s *RecordStore) recordKey(userID string) string {
	return "streak:record:" + userID
}
