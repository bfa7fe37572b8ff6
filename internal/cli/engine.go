package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/calendar"
	"elsa-streak-service/internal/config"
	"elsa-streak-service/internal/infra/firestore"
	"elsa-streak-service/internal/infra/memory"
	"elsa-streak-service/internal/infra/postgres"
	redisstore "elsa-streak-service/internal/infra/redis"
	"elsa-streak-service/internal/streak"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// engine bundles the streak service with the connections backing it.
type engine struct {
	service *app.StreakService
	closers []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config %s not found, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

func newEngine(ctx context.Context, cfg config.Config) (*engine, error) {
	cal, err := calendar.Load(cfg.Streak.Timezone)
	if err != nil {
		return nil, err
	}
	machine := streak.NewMachine(cal, streak.Policy{
		MaxFreezes:          *cfg.Streak.MaxFreezes,
		MaxRevives:          *cfg.Streak.MaxRevives,
		ReviveWindow:        config.Duration(cfg.Streak.ReviveWindow, streak.DefaultReviveWindow),
		ResetRevivesMonthly: *cfg.Streak.ResetRevivesMonthly,
	})

	e := &engine{}
	var (
		records app.RecordStore
		events  app.ActivityLog
	)
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.closers = append(e.closers, func() { client.Close() })
		records = redisstore.NewRecordStore(client)
		events = redisstore.NewActivityLog(client)
	case config.BackendPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		e.closers = append(e.closers, func() { db.Close() })
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		e.closers = append(e.closers, pool.Close)
		records = postgres.NewRecordStore(db)
		events = postgres.NewActivityLog(pool)
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { client.Close() })
		records = firestore.NewRecordStore(client)
		events = firestore.NewActivityLog(client)
	default:
		records = memory.NewRecordStore()
		events = memory.NewActivityLog()
	}

	e.service = app.NewStreakService(records, events, machine, app.Options{
		MaxAttempts:  cfg.Streak.MaxAttempts,
		StoreTimeout: config.Duration(cfg.Streak.StoreTimeout, 0),
	})
	log.Printf("streak engine using %s backend in %s", cfg.Backend, cal.Location())
	return e, nil
}
