package main

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/shopspring/decimal"
)

var (
	// TitleStyle is used for the dashboard title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	// WidgetTitleStyle is used for widget headings.
	WidgetTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252"))

	// WidgetStyle frames a single dashboard widget.
	WidgetStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(24)

	// HelpStyle is used for help text and secondary detail.
	HelpStyle = lipgloss.NewStyle().
			Faint(true)

	// NoDataStyle marks widgets that have not received data yet.
	NoDataStyle = lipgloss.NewStyle().
			Faint(true).
			Italic(true)

	// DangerStyle renders high priority and error content.
	DangerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	// WarningStyle renders medium priority and degraded-state content.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// InfoStyle renders low priority and informational content.
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	// SuccessStyle renders confirmations and the connected indicator.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// NeutralStyle renders content with no severity of its own.
	NeutralStyle = lipgloss.NewStyle().
			Faint(true)
)

// StyleForSeverity maps a severity to its display style.
func StyleForSeverity(severity types.Severity) lipgloss.Style {
	switch severity {
	case types.SeverityDanger:
		return DangerStyle
	case types.SeverityWarning:
		return WarningStyle
	case types.SeverityInfo:
		return InfoStyle
	case types.SeveritySuccess:
		return SuccessStyle
	default:
		return NeutralStyle
	}
}

// FormatConfidence renders a confidence fraction as a whole percentage,
// for example 0.82 as "82%". Out-of-range values are clamped.
func FormatConfidence(confidence float64) string {
	pct := int(math.Round(confidence * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return fmt.Sprintf("%d%%", pct)
}

// FormatDelta renders a signed change with a direction arrow.
func FormatDelta(change decimal.Decimal) string {
	switch {
	case change.IsPositive():
		return "+" + change.String() + " ▲"
	case change.IsNegative():
		return change.String() + " ▼"
	default:
		return change.String()
	}
}

// FormatChangePct renders a percentage change with a direction arrow.
func FormatChangePct(change decimal.Decimal) string {
	switch {
	case change.IsPositive():
		return "+" + change.String() + "% ▲"
	case change.IsNegative():
		return change.String() + "% ▼"
	default:
		return change.String() + "%"
	}
}
