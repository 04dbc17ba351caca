package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorBlue).
			Padding(0, 1)

	unreadCountStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				Background(colorRed).
				Padding(0, 1)

	itemStyle = lipgloss.NewStyle().PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorBlue)

	unreadTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	readTitleStyle   = lipgloss.NewStyle().Foreground(colorGray)
	messageStyle     = lipgloss.NewStyle().Foreground(colorGray)

	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorGreen).
			Padding(0, 1)

	errorStyle  = lipgloss.NewStyle().Foreground(colorRed)
	statusStyle = lipgloss.NewStyle().Foreground(colorSubtle).Italic(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(colorGray).Italic(true).PaddingLeft(2)
)

// badgeStyle returns the style for a notification badge variant.
func badgeStyle(variant string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#1A202C"))
	switch variant {
	case "success":
		return base.Background(colorGreen)
	case "warning":
		return base.Background(colorYellow)
	case "danger":
		return base.Background(colorRed).Foreground(lipgloss.Color("#F8F9FA"))
	default:
		return base.Background(colorBlue).Foreground(lipgloss.Color("#F8F9FA"))
	}
}

// age renders how long ago t was, coarsely.
func age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
