package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/config"
	transport "elsa-streak-service/internal/transport/http"
	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the streak server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Backend == config.BackendPostgres {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	app.RegisterMetrics(prometheus.DefaultRegisterer)
	transport.RegisterMetrics(prometheus.DefaultRegisterer)

	scheduler, err := startSweep(eng.service, cfg)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	limiter := transport.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	go limiter.Cleanup(limiterCtx, 3*time.Minute)

	tracker := app.NewTracker(eng.service)
	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(tracker, transport.RouterOptions{
			Limiter:        limiter,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting streak service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startSweep schedules break detection and the monthly reset over the leaderboard.
func startSweep(service *app.StreakService, cfg config.Config) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(service.Machine().Calendar().Location())
	limit := cfg.Sweep.Limit
	_, err := scheduler.Cron(cfg.Sweep.Schedule).Do(func() {
		changed, err := service.Sweep(context.Background(), limit)
		if err != nil {
			log.Printf("streak sweep failed after %d updates: %v", changed, err)
			return
		}
		log.Printf("streak sweep updated %d records", changed)
	})
	if err != nil {
		return nil, err
	}
	scheduler.StartAsync()
	return scheduler, nil
}
