package main

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewModel(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	assert.Equal(t, []types.AssetClass{types.AssetClassForex, types.AssetClassStocks, types.AssetClassCrypto}, m.classOrder)
	assert.Equal(t, config.DefaultMaxNarratives, m.maxNarratives)
	assert.Equal(t, types.PriorityLow, m.minPriority)
	assert.Equal(t, stream.StateIdle, m.connState)
	assert.Equal(t, config.DefaultNoticeTTL, m.noticeTTL)
	assert.NotNil(t, m.classes)
	assert.Nil(t, m.notice)
}

func TestIntelligenceMessage(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	at := types.NewTimestamp(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC))
	msg := IntelligenceMsg{
		Update: types.IntelligenceUpdate{
			Classes: map[types.AssetClass][]types.Narrative{
				types.AssetClassForex: {
					{Symbol: "EURUSD", Priority: types.PriorityHigh, Text: "Breakout above resistance", Confidence: 0.82},
					{Symbol: "USDJPY", Priority: types.PriorityLow, Text: "Range-bound session", Confidence: 0.41},
				},
			},
			Timestamp: at,
		},
	}

	newModel, _ := m.Update(msg)
	updated := newModel.(Model)

	assert.Len(t, updated.classes[types.AssetClassForex], 2)
	assert.Equal(t, "EURUSD", updated.classes[types.AssetClassForex][0].Symbol)
	assert.Equal(t, "USDJPY", updated.classes[types.AssetClassForex][1].Symbol)
	assert.Equal(t, at, updated.lastUpdated)
}

func TestIntelligenceReplacesRegion(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)
	m.classes[types.AssetClassForex] = []types.Narrative{
		{Symbol: "EURUSD", Priority: types.PriorityHigh, Text: "Old narrative", Confidence: 0.9},
		{Symbol: "GBPUSD", Priority: types.PriorityLow, Text: "Old narrative", Confidence: 0.3},
	}
	m.classes[types.AssetClassCrypto] = []types.Narrative{
		{Symbol: "BTCUSD", Priority: types.PriorityMedium, Text: "Untouched narrative", Confidence: 0.5},
	}

	// A new forex update fully replaces the forex region; crypto was absent
	// from the update and keeps its content.
	msg := IntelligenceMsg{
		Update: types.IntelligenceUpdate{
			Classes: map[types.AssetClass][]types.Narrative{
				types.AssetClassForex: {
					{Symbol: "AUDUSD", Priority: types.PriorityMedium, Text: "New narrative", Confidence: 0.6},
				},
			},
		},
	}

	newModel, _ := m.Update(msg)
	updated := newModel.(Model)

	assert.Len(t, updated.classes[types.AssetClassForex], 1)
	assert.Equal(t, "AUDUSD", updated.classes[types.AssetClassForex][0].Symbol)
	assert.Len(t, updated.classes[types.AssetClassCrypto], 1)
	assert.Equal(t, "BTCUSD", updated.classes[types.AssetClassCrypto][0].Symbol)
}

func TestIntelligenceEmptyListClearsRegion(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)
	m.classes[types.AssetClassForex] = []types.Narrative{
		{Symbol: "EURUSD", Priority: types.PriorityHigh, Text: "Old narrative", Confidence: 0.9},
	}

	msg := IntelligenceMsg{
		Update: types.IntelligenceUpdate{
			Classes: map[types.AssetClass][]types.Narrative{
				types.AssetClassForex: {},
			},
		},
	}

	newModel, _ := m.Update(msg)
	updated := newModel.(Model)

	assert.Empty(t, updated.classes[types.AssetClassForex])
}

func TestSnapshotMessageMergesPartialUpdates(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	first := SnapshotMsg{
		Snapshot: types.DashboardSnapshot{
			VolatilityIndex:  optional.Some(decimal.NewFromFloat(18.4)),
			VolatilityChange: optional.Some(decimal.NewFromFloat(1.3)),
		},
	}
	second := SnapshotMsg{
		Snapshot: types.DashboardSnapshot{
			MarketStatus: optional.Some(types.MarketStatusBullish),
			BreadthPct:   optional.Some(decimal.NewFromFloat(62.5)),
		},
	}

	newModel, _ := m.Update(first)
	newModel, _ = newModel.(Model).Update(second)
	updated := newModel.(Model)

	// The second snapshot omitted volatility; the widget keeps its value.
	index, err := updated.snapshot.VolatilityIndex.Take()
	assert.NoError(t, err)
	assert.Equal(t, "18.4", index.String())

	status, err := updated.snapshot.MarketStatus.Take()
	assert.NoError(t, err)
	assert.Equal(t, types.MarketStatusBullish, status)
}

func TestSnapshotMessagePopulatesMoversTable(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	msg := SnapshotMsg{
		Snapshot: types.DashboardSnapshot{
			TopMovers: &types.TopMovers{
				Gainers: []types.Mover{
					{Pair: "EURUSD", Latest: decimal.NewFromFloat(1.0842), ChangePct: decimal.NewFromFloat(0.42), Range: decimal.NewFromFloat(0.0061)},
				},
				Losers: []types.Mover{
					{Pair: "USDJPY", Latest: decimal.NewFromFloat(148.21), ChangePct: decimal.NewFromFloat(-0.38), Range: decimal.NewFromFloat(0.91)},
				},
				By: "change_pct",
			},
		},
	}

	newModel, _ := m.Update(msg)
	updated := newModel.(Model)

	rows := updated.moversTable.Rows()
	assert.Len(t, rows, 2)
	assert.Equal(t, "EURUSD", rows[0][0])
	assert.Equal(t, "USDJPY", rows[1][0])
}

func TestConnStateMessage(t *testing.T) {
	t.Run("drop surfaces a reconnecting notice", func(t *testing.T) {
		m := NewModel(config.DefaultConfig(), nil)
		m.connState = stream.StateOpen

		newModel, cmd := m.Update(ConnStateMsg{From: stream.StateOpen, To: stream.StateReconnecting, Attempt: 1})
		updated := newModel.(Model)

		assert.Equal(t, stream.StateReconnecting, updated.connState)
		assert.Equal(t, 1, updated.attempt)
		assert.NotNil(t, updated.notice)
		assert.Equal(t, types.SeverityWarning, updated.notice.severity)
		assert.NotNil(t, cmd)
	})

	t.Run("retry transitions update the attempt without a new notice", func(t *testing.T) {
		m := NewModel(config.DefaultConfig(), nil)
		m.connState = stream.StateReconnecting
		m.attempt = 1

		newModel, cmd := m.Update(ConnStateMsg{From: stream.StateReconnecting, To: stream.StateReconnecting, Attempt: 2})
		updated := newModel.(Model)

		assert.Equal(t, 2, updated.attempt)
		assert.Nil(t, updated.notice)
		assert.Nil(t, cmd)
	})

	t.Run("open resets the stale latency reading", func(t *testing.T) {
		m := NewModel(config.DefaultConfig(), nil)
		m.connState = stream.StateReconnecting
		m.latency = 40 * time.Millisecond

		newModel, _ := m.Update(ConnStateMsg{From: stream.StateReconnecting, To: stream.StateOpen, Attempt: 0})
		updated := newModel.(Model)

		assert.Equal(t, stream.StateOpen, updated.connState)
		assert.Zero(t, updated.latency)
	})
}

func TestPongMessage(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	newModel, _ := m.Update(PongMsg{Latency: 23 * time.Millisecond})
	updated := newModel.(Model)

	assert.Equal(t, 23*time.Millisecond, updated.latency)
}

func TestNoticeLifecycle(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	newModel, _ := m.Update(NoticeMsg{Message: "First notice", Severity: types.SeverityInfo})
	newModel, _ = newModel.(Model).Update(NoticeMsg{Message: "Second notice", Severity: types.SeveritySuccess})
	updated := newModel.(Model)

	assert.Equal(t, "Second notice", updated.notice.message)

	// The first notice's expiry timer fires late; the newer notice stays.
	newModel, _ = updated.Update(noticeExpiredMsg{seq: 1})
	updated = newModel.(Model)
	assert.NotNil(t, updated.notice)

	newModel, _ = updated.Update(noticeExpiredMsg{seq: 2})
	updated = newModel.(Model)
	assert.Nil(t, updated.notice)
}

func TestMergeSnapshot(t *testing.T) {
	current := types.DashboardSnapshot{
		MarketStatus:     optional.Some(types.MarketStatusBearish),
		BreadthPct:       optional.Some(decimal.NewFromFloat(44.0)),
		BreadthSeries:    []float64{40, 42, 44},
		VolatilityIndex:  optional.Some(decimal.NewFromFloat(21.0)),
		CurrentSession:   optional.Some("Tokyo"),
		TechnicalBreadth: &types.TechnicalBreadth{MACDBullCross: 2, RSIOver70: 1, PairsEvaluated: 24},
	}
	incoming := types.DashboardSnapshot{
		MarketStatus: optional.Some(types.MarketStatusBullish),
		BreadthPct:   optional.Some(decimal.NewFromFloat(61.5)),
	}

	merged := MergeSnapshot(current, incoming)

	status, _ := merged.MarketStatus.Take()
	assert.Equal(t, types.MarketStatusBullish, status)

	breadth, _ := merged.BreadthPct.Take()
	assert.Equal(t, "61.5", breadth.String())

	// Absent fields retain their previous values.
	index, _ := merged.VolatilityIndex.Take()
	assert.Equal(t, "21", index.String())
	session, _ := merged.CurrentSession.Take()
	assert.Equal(t, "Tokyo", session)
	assert.Equal(t, []float64{40, 42, 44}, merged.BreadthSeries)
	assert.NotNil(t, merged.TechnicalBreadth)
}

func TestCycleMinPriority(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	updated := newModel.(Model)
	assert.Equal(t, types.PriorityMedium, updated.minPriority)
	assert.NotNil(t, cmd)

	newModel, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	updated = newModel.(Model)
	assert.Equal(t, types.PriorityHigh, updated.minPriority)

	newModel, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	updated = newModel.(Model)
	assert.Equal(t, types.PriorityLow, updated.minPriority)
}

func TestNextPriority(t *testing.T) {
	assert.Equal(t, types.PriorityMedium, nextPriority(types.PriorityLow))
	assert.Equal(t, types.PriorityHigh, nextPriority(types.PriorityMedium))
	assert.Equal(t, types.PriorityLow, nextPriority(types.PriorityHigh))
}

func TestRefreshWhileDisconnected(t *testing.T) {
	manager := stream.NewManager("ws://localhost:9/ws/dashboard/", config.DefaultConfig().Stream, nil)
	m := NewModel(config.DefaultConfig(), manager)

	// The manager was never started, so the refresh command must surface a
	// warning notice instead of sending.
	cmd := m.requestRefresh()
	msg := cmd()

	noticeMsg, ok := msg.(NoticeMsg)
	assert.True(t, ok)
	assert.Equal(t, types.SeverityWarning, noticeMsg.Severity)
	assert.Contains(t, noticeMsg.Message, "disconnected")
}

func TestPreferencePushWhileDisconnected(t *testing.T) {
	manager := stream.NewManager("ws://localhost:9/ws/dashboard/", config.DefaultConfig().Stream, nil)
	m := NewModel(config.DefaultConfig(), manager)

	newModel, cmd := m.cycleMinPriority()
	updated := newModel.(Model)
	assert.Equal(t, types.PriorityMedium, updated.minPriority)

	msg := cmd()
	noticeMsg, ok := msg.(NoticeMsg)
	assert.True(t, ok)
	assert.Equal(t, types.SeverityWarning, noticeMsg.Severity)
}

func TestDashboardDisplay(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)
	m.connState = stream.StateOpen
	m.classes[types.AssetClassForex] = []types.Narrative{
		{Symbol: "EURUSD", Priority: types.PriorityHigh, Text: "Breakout above resistance", Confidence: 0.82},
	}
	m.snapshot = types.DashboardSnapshot{
		MarketStatus:    optional.Some(types.MarketStatusBullish),
		BreadthPct:      optional.Some(decimal.NewFromFloat(62.5)),
		VolatilityIndex: optional.Some(decimal.NewFromFloat(18.4)),
		CurrentSession:  optional.Some("London"),
		SessionActivity: optional.Some(types.SessionActivityHigh),
	}

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

	// Wait for the populated widgets to render
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("EURUSD")) &&
			bytes.Contains(bts, []byte("82%")) &&
			bytes.Contains(bts, []byte("Bullish")) &&
			bytes.Contains(bts, []byte("London"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestDashboardShowsPlaceholdersBeforeData(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

	// Every widget renders its placeholder before any frame arrives
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("No data yet")) &&
			bytes.Contains(bts, []byte("FOREX")) &&
			bytes.Contains(bts, []byte("idle"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestQuitBehavior(t *testing.T) {
	t.Run("ctrl+c quits", func(t *testing.T) {
		m := NewModel(config.DefaultConfig(), nil)
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})

		tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	})

	t.Run("q quits", func(t *testing.T) {
		m := NewModel(config.DefaultConfig(), nil)
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

		teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
			return bytes.Contains(bts, []byte("Marketdeck"))
		}, teatest.WithDuration(2*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

		tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	})
}

func TestWindowResize(t *testing.T) {
	m := NewModel(config.DefaultConfig(), nil)

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := newModel.(Model)

	assert.Equal(t, 120, updated.width)
	assert.Equal(t, 40, updated.height)
}
