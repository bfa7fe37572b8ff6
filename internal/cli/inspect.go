package cli

import (
	"context"
	"fmt"

	"elsa-streak-service/internal/app"
	"github.com/spf13/cobra"
)

// NewShowCmd prints a user's current streak view.
func NewShowCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), *configPath, func(service *app.StreakService) error {
				rec, err := service.DetectBreak(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderView(app.BuildView(service.Machine(), rec, service.Now())))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// NewRecalculateCmd rebuilds a user's streak from their quiz history.
func NewRecalculateCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Rebuild a user's streak from quiz history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), *configPath, func(service *app.StreakService) error {
				before, err := service.Get(cmd.Context(), userID)
				if err != nil {
					return err
				}
				rec, err := service.Recalculate(cmd.Context(), userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("current %d -> %d, longest %d -> %d, quiz days %d -> %d",
					before.CurrentStreak, rec.CurrentStreak,
					before.LongestStreak, rec.LongestStreak,
					before.TotalQuizDays, rec.TotalQuizDays)))
				fmt.Fprintln(out, renderView(app.BuildView(service.Machine(), rec, service.Now())))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func withEngine(ctx context.Context, configPath string, fn func(*app.StreakService) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(eng.service)
}
