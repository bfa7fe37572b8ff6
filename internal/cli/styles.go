package cli

import (
	"fmt"
	"strings"

	"elsa-streak-service/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	gold    = lipgloss.Color("#FFD700")
	amber   = lipgloss.Color("#FFBF00")
	emerald = lipgloss.Color("#50C878")
	ruby    = lipgloss.Color("#E0115F")
	dim     = lipgloss.Color("#666666")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(gold)
	keyStyle    = lipgloss.NewStyle().Foreground(amber).Width(18)
	okStyle     = lipgloss.NewStyle().Foreground(emerald)
	dangerStyle = lipgloss.NewStyle().Foreground(ruby).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(dim)
	bannerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(gold).
			Padding(0, 1)
)

// renderView formats a streak view as a bordered card for the terminal.
func renderView(view domain.StreakView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s: %d day streak", view.UserID, view.CurrentStreak)))
	b.WriteString("\n")

	row := func(key, value string) {
		b.WriteString(keyStyle.Render(key))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("longest", fmt.Sprintf("%d", view.LongestStreak))
	row("quiz days", fmt.Sprintf("%d", view.TotalQuizDays))
	row("last active", orDash(view.LastActiveDay))
	row("freezes left", fmt.Sprintf("%d/%d", view.FreezesRemaining, view.MaxFreezes))
	row("revives left", fmt.Sprintf("%d", view.RevivesRemaining))

	switch {
	case view.CanReviveNow:
		row("status", dangerStyle.Render(fmt.Sprintf("lost %d days, revive before %s",
			view.LostStreakLength, view.ReviveExpiresAt.Format("2006-01-02 15:04"))))
	case view.IsInDanger:
		row("status", dangerStyle.Render("in danger"))
	case view.NeedsQuizToday:
		row("status", mutedStyle.Render("quiz due today"))
	default:
		row("status", okStyle.Render("done for "+view.Today))
	}
	return bannerStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func orDash(s string) string {
	if s == "" {
		return mutedStyle.Render("-")
	}
	return s
}
