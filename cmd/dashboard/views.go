package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
)

const noDataText = "No data yet"

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// NewMoversTable creates the table used for the top movers widget.
func NewMoversTable() table.Model {
	columns := []table.Column{
		{Title: "Pair", Width: 10},
		{Title: "Last", Width: 12},
		{Title: "Change", Width: 12},
		{Title: "Range", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(s)

	return t
}

// UpdateMoversRows rebuilds the movers table, gainers first then losers,
// keeping the server's ranking order.
func UpdateMoversRows(t table.Model, movers *types.TopMovers) table.Model {
	if movers == nil {
		t.SetRows(nil)
		return t
	}

	rows := make([]table.Row, 0, len(movers.Gainers)+len(movers.Losers))
	for _, mover := range movers.Gainers {
		rows = append(rows, moverRow(mover))
	}
	for _, mover := range movers.Losers {
		rows = append(rows, moverRow(mover))
	}
	t.SetRows(rows)

	return t
}

func moverRow(mover types.Mover) table.Row {
	return table.Row{
		mover.Pair,
		mover.Latest.String(),
		FormatChangePct(mover.ChangePct),
		mover.Range.String(),
	}
}

// Sparkline renders the series as unicode bars scaled to its own range,
// keeping the most recent width values.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	minValue, maxValue := values[0], values[0]
	for _, v := range values[1:] {
		if v < minValue {
			minValue = v
		}
		if v > maxValue {
			maxValue = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		idx := len(sparkRunes) / 2
		if maxValue > minValue {
			idx = int((v - minValue) / (maxValue - minValue) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}

	return b.String()
}

// StateIndicator renders the connection state dot and label.
func StateIndicator(state stream.State, attempt int) string {
	switch state {
	case stream.StateOpen:
		return SuccessStyle.Render("●") + " connected"
	case stream.StateConnecting:
		return WarningStyle.Render("●") + " connecting"
	case stream.StateReconnecting:
		return WarningStyle.Render("●") + fmt.Sprintf(" reconnecting (attempt %d)", attempt)
	case stream.StateClosed:
		return NeutralStyle.Render("●") + " closed"
	default:
		return NeutralStyle.Render("●") + " idle"
	}
}

// renderStatusBar renders the connection state, link latency, and the time
// of the last server update.
func renderStatusBar(state stream.State, attempt int, latency time.Duration, lastUpdated types.Timestamp) string {
	parts := []string{StateIndicator(state, attempt)}

	if latency > 0 {
		parts = append(parts, fmt.Sprintf("link %s", latency.Round(time.Millisecond)))
	}
	if !lastUpdated.IsZero() {
		parts = append(parts, fmt.Sprintf("updated %s", lastUpdated.Format("15:04:05")))
	}

	return strings.Join(parts, HelpStyle.Render(" | "))
}

// renderMarketStatus renders the market regime widget with the breadth
// sparkline.
func renderMarketStatus(snapshot types.DashboardSnapshot) string {
	var b strings.Builder
	b.WriteString(WidgetTitleStyle.Render("Market"))
	b.WriteString("\n")

	status, err := snapshot.MarketStatus.Take()
	if err != nil {
		b.WriteString(NoDataStyle.Render(noDataText))
		return b.String()
	}

	b.WriteString(styleForMarketStatus(status).Render(status))

	if breadth, err := snapshot.BreadthPct.Take(); err == nil {
		b.WriteString("\nBreadth " + breadth.StringFixed(1) + "%")
	}
	if len(snapshot.BreadthSeries) > 0 {
		b.WriteString("\n")
		b.WriteString(Sparkline(snapshot.BreadthSeries, 20))
	}

	return b.String()
}

func styleForMarketStatus(status string) lipgloss.Style {
	switch status {
	case types.MarketStatusBullish:
		return SuccessStyle
	case types.MarketStatusBearish:
		return DangerStyle
	default:
		return NeutralStyle
	}
}

// renderVolatility renders the volatility index widget.
func renderVolatility(snapshot types.DashboardSnapshot) string {
	var b strings.Builder
	b.WriteString(WidgetTitleStyle.Render("Volatility"))
	b.WriteString("\n")

	index, err := snapshot.VolatilityIndex.Take()
	if err != nil {
		b.WriteString(NoDataStyle.Render(noDataText))
		return b.String()
	}

	b.WriteString(index.String())

	if change, err := snapshot.VolatilityChange.Take(); err == nil {
		b.WriteString(" ")
		b.WriteString(FormatDelta(change))
	}

	return b.String()
}

// renderSignals renders the active signal counters.
func renderSignals(snapshot types.DashboardSnapshot) string {
	var b strings.Builder
	b.WriteString(WidgetTitleStyle.Render("Signals"))
	b.WriteString("\n")

	active, activeErr := snapshot.ActiveSignals.Take()
	if activeErr != nil && snapshot.TechnicalBreadth == nil {
		b.WriteString(NoDataStyle.Render(noDataText))
		return b.String()
	}

	if activeErr == nil {
		b.WriteString(fmt.Sprintf("Active %d", active))
	}
	if breadth := snapshot.TechnicalBreadth; breadth != nil {
		if activeErr == nil {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("MACD bull cross %d\nRSI above 70 %d\nPairs evaluated %d",
			breadth.MACDBullCross, breadth.RSIOver70, breadth.PairsEvaluated))
	}

	return b.String()
}

// renderSession renders the trading session widget.
func renderSession(snapshot types.DashboardSnapshot) string {
	var b strings.Builder
	b.WriteString(WidgetTitleStyle.Render("Session"))
	b.WriteString("\n")

	session, err := snapshot.CurrentSession.Take()
	if err != nil {
		b.WriteString(NoDataStyle.Render(noDataText))
		return b.String()
	}

	b.WriteString(session)

	if activity, err := snapshot.SessionActivity.Take(); err == nil {
		b.WriteString("\nActivity ")
		b.WriteString(styleForActivity(activity).Render(activity))
	}

	return b.String()
}

func styleForActivity(activity string) lipgloss.Style {
	switch activity {
	case types.SessionActivityHigh:
		return SuccessStyle
	case types.SessionActivityMedium:
		return WarningStyle
	default:
		return NeutralStyle
	}
}

// renderFeed renders one asset-class narrative region. The caller passes the
// narratives exactly as the server ordered them; an incoming update replaces
// the whole region, so there is nothing to merge or re-sort here.
func renderFeed(class types.AssetClass, narratives []types.Narrative, maxItems int) string {
	var b strings.Builder
	b.WriteString(WidgetTitleStyle.Render(strings.ToUpper(string(class))))
	b.WriteString("\n")

	if len(narratives) == 0 {
		b.WriteString(NoDataStyle.Render(noDataText))
		return b.String()
	}

	if maxItems > 0 && len(narratives) > maxItems {
		narratives = narratives[:maxItems]
	}

	for i, narrative := range narratives {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderNarrative(narrative))
	}

	return b.String()
}

// renderNarrative renders a single narrative line with its severity marker
// and confidence percentage.
func renderNarrative(n types.Narrative) string {
	style := StyleForSeverity(types.SeverityForPriority(n.Priority))

	return fmt.Sprintf("%s %s %s %s",
		style.Render("●"),
		TitleStyle.Render(n.Symbol),
		n.Text,
		HelpStyle.Render(FormatConfidence(n.Confidence)),
	)
}

func renderNotice(n notice) string {
	return StyleForSeverity(n.severity).Render(n.message)
}
