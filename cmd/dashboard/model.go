package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/pkg/errors"
)

// Model is the Bubble Tea model for the dashboard.
//
// The event loop never calls into the stream manager directly. Stop waits
// for in-flight dispatch, and dispatch delivers into this loop, so an inline
// call would deadlock; every manager interaction runs inside a tea.Cmd.
type Model struct {
	manager *stream.Manager

	classOrder    []types.AssetClass
	maxNarratives int
	noticeTTL     time.Duration
	minPriority   types.Priority

	connState   stream.State
	attempt     int
	latency     time.Duration
	lastUpdated types.Timestamp

	classes     map[types.AssetClass][]types.Narrative
	snapshot    types.DashboardSnapshot
	moversTable table.Model

	notice    *notice
	noticeSeq int

	width  int
	height int
}

type notice struct {
	message  string
	severity types.Severity
}

// NewModel creates the dashboard model. The manager is not started here;
// Init starts it once the event loop is running.
func NewModel(cfg config.ClientConfig, manager *stream.Manager) Model {
	classOrder := make([]types.AssetClass, 0, len(cfg.Dashboard.AssetClasses))
	for _, class := range cfg.Dashboard.AssetClasses {
		classOrder = append(classOrder, types.AssetClass(class))
	}

	noticeTTL := cfg.Dashboard.NoticeTTL.Duration
	if noticeTTL <= 0 {
		noticeTTL = config.DefaultNoticeTTL
	}

	return Model{ //nolint:exhaustruct
		manager:       manager,
		classOrder:    classOrder,
		maxNarratives: cfg.Dashboard.MaxNarratives,
		noticeTTL:     noticeTTL,
		minPriority:   types.Priority(cfg.Dashboard.MinPriority),
		connState:     stream.StateIdle,
		classes:       make(map[types.AssetClass][]types.Narrative),
		moversTable:   NewMoversTable(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.startStream()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, m.stopAndQuit()
		case "r":
			return m, m.requestRefresh()
		case "p":
			return m.cycleMinPriority()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ConnStateMsg:
		return m.applyConnState(msg)

	case IntelligenceMsg:
		// Each class present in the update fully replaces that region, in
		// the order the server sent its narratives. Absent classes keep
		// their previous content.
		for class, narratives := range msg.Update.Classes {
			m.classes[class] = narratives
		}
		m.lastUpdated = msg.Update.Timestamp
		return m, nil

	case SnapshotMsg:
		m.snapshot = MergeSnapshot(m.snapshot, msg.Snapshot)
		m.moversTable = UpdateMoversRows(m.moversTable, m.snapshot.TopMovers)
		if !msg.Snapshot.Timestamp.IsZero() {
			m.lastUpdated = msg.Snapshot.Timestamp
		}
		return m, nil

	case PongMsg:
		m.latency = msg.Latency
		return m, nil

	case NoticeMsg:
		return m.showNotice(msg.Message, msg.Severity)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.moversTable, cmd = m.moversTable.Update(msg)

	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Marketdeck"))
	s.WriteString("  ")
	s.WriteString(renderStatusBar(m.connState, m.attempt, m.latency, m.lastUpdated))
	s.WriteString("\n")

	if m.notice != nil {
		s.WriteString(renderNotice(*m.notice))
	}
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		WidgetStyle.Render(renderMarketStatus(m.snapshot)),
		WidgetStyle.Render(renderVolatility(m.snapshot)),
		WidgetStyle.Render(renderSignals(m.snapshot)),
		WidgetStyle.Render(renderSession(m.snapshot)),
	))
	s.WriteString("\n")

	s.WriteString(WidgetTitleStyle.Render("Top Movers"))
	s.WriteString("\n")
	if m.snapshot.TopMovers == nil {
		s.WriteString(NoDataStyle.Render(noDataText))
		s.WriteString("\n")
	} else {
		s.WriteString(m.moversTable.View())
		s.WriteString("\n")
	}

	for _, class := range m.classOrder {
		s.WriteString("\n")
		s.WriteString(renderFeed(class, m.classes[class], m.maxNarratives))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(HelpStyle.Render(fmt.Sprintf("q: quit | r: refresh | p: min priority (%s)", m.minPriority)))
	s.WriteString("\n")

	return s.String()
}

// MergeSnapshot folds a partial snapshot into the accumulated one. Only
// fields present in the incoming snapshot overwrite; absent fields keep
// their previous values so a partial refresh never blanks a widget.
func MergeSnapshot(current, incoming types.DashboardSnapshot) types.DashboardSnapshot {
	if incoming.MarketStatus.IsSome() {
		current.MarketStatus = incoming.MarketStatus
	}
	if incoming.BreadthPct.IsSome() {
		current.BreadthPct = incoming.BreadthPct
	}
	if incoming.BreadthSeries != nil {
		current.BreadthSeries = incoming.BreadthSeries
	}
	if incoming.VolatilityIndex.IsSome() {
		current.VolatilityIndex = incoming.VolatilityIndex
	}
	if incoming.VolatilityChange.IsSome() {
		current.VolatilityChange = incoming.VolatilityChange
	}
	if incoming.ActiveSignals.IsSome() {
		current.ActiveSignals = incoming.ActiveSignals
	}
	if incoming.CurrentSession.IsSome() {
		current.CurrentSession = incoming.CurrentSession
	}
	if incoming.SessionActivity.IsSome() {
		current.SessionActivity = incoming.SessionActivity
	}
	if incoming.TopMovers != nil {
		current.TopMovers = incoming.TopMovers
	}
	if incoming.TechnicalBreadth != nil {
		current.TechnicalBreadth = incoming.TechnicalBreadth
	}
	if !incoming.Timestamp.IsZero() {
		current.Timestamp = incoming.Timestamp
	}

	return current
}

func (m Model) applyConnState(msg ConnStateMsg) (tea.Model, tea.Cmd) {
	m.connState = msg.To
	m.attempt = msg.Attempt

	if msg.To == stream.StateOpen {
		m.latency = 0
	}

	// Surface the initial drop as a transient notice. Subsequent retry
	// transitions only update the status bar.
	if msg.To == stream.StateReconnecting && msg.From != stream.StateReconnecting {
		return m.showNotice("Connection lost, reconnecting", types.SeverityWarning)
	}

	return m, nil
}

func (m Model) showNotice(message string, severity types.Severity) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = &notice{message: message, severity: severity}

	seq := m.noticeSeq

	return m, tea.Tick(m.noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

func (m Model) startStream() tea.Cmd {
	manager := m.manager

	return func() tea.Msg {
		if manager == nil {
			return nil
		}
		if err := manager.Start(context.Background()); err != nil {
			return NoticeMsg{
				Message:  fmt.Sprintf("Stream failed to start: %v", err),
				Severity: types.SeverityDanger,
			}
		}

		return nil
	}
}

func (m Model) stopAndQuit() tea.Cmd {
	manager := m.manager

	return func() tea.Msg {
		if manager != nil {
			manager.Stop()
		}

		return tea.Quit()
	}
}

// requestRefresh asks the server for an immediate update. A drop while
// disconnected surfaces as a warning instead of an error.
func (m Model) requestRefresh() tea.Cmd {
	manager := m.manager

	return func() tea.Msg {
		if manager == nil {
			return nil
		}
		if err := manager.RequestUpdate(); err != nil {
			if errors.HasCode(err, errors.ErrCodeNotConnected) {
				return NoticeMsg{
					Message:  "Refresh unavailable while disconnected",
					Severity: types.SeverityWarning,
				}
			}

			return NoticeMsg{
				Message:  fmt.Sprintf("Refresh failed: %v", err),
				Severity: types.SeverityDanger,
			}
		}

		return nil
	}
}

// cycleMinPriority advances the minimum priority preference and pushes it to
// the server. The label updates immediately; the server confirms with a
// preferences_updated frame.
func (m Model) cycleMinPriority() (tea.Model, tea.Cmd) {
	m.minPriority = nextPriority(m.minPriority)

	manager := m.manager
	preferences := types.Preferences{
		AssetClasses: m.classOrder,
		MinPriority:  m.minPriority,
	}

	return m, func() tea.Msg {
		if manager == nil {
			return nil
		}
		if err := manager.UpdatePreferences(preferences); err != nil {
			return NoticeMsg{
				Message:  "Preference change not sent while disconnected",
				Severity: types.SeverityWarning,
			}
		}

		return nil
	}
}

// nextPriority cycles low, medium, high and back to low.
func nextPriority(p types.Priority) types.Priority {
	switch p {
	case types.PriorityLow:
		return types.PriorityMedium
	case types.PriorityMedium:
		return types.PriorityHigh
	default:
		return types.PriorityLow
	}
}
