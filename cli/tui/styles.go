// Package tui provides the Bubble Tea views of the msbuild-rar CLI.
//
// TUI mode is opt-in (--tui) and read-only. It renders the same payloads
// as the json, yaml and table output and never shows data they lack.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	ValueStyle   = lipgloss.NewStyle()
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	MutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	// TabStyle and ActiveTabStyle render the resolution selector.
	TabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
	ActiveTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor).
			Underline(true).
			Padding(0, 1)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for key hints.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// OutcomeStyle colours a resolution outcome.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "success", "idle":
		return SuccessStyle
	case "task_failed", "stale":
		return WarningStyle
	case "launch_failure", "node_crash":
		return ErrorStyle
	default:
		return ValueStyle
	}
}

// CategoryStyle colours an event category.
func CategoryStyle(category string) lipgloss.Style {
	switch category {
	case "error":
		return ErrorStyle
	case "warning":
		return WarningStyle
	case "message":
		return MutedStyle
	default:
		return ValueStyle
	}
}
