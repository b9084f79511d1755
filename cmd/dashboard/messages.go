package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lunarcap/marketdeck/internal/dispatch"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
)

// IntelligenceMsg carries a routed intelligence update from the stream.
type IntelligenceMsg struct {
	Update types.IntelligenceUpdate
}

// SnapshotMsg carries a routed dashboard snapshot from the stream.
type SnapshotMsg struct {
	Snapshot types.DashboardSnapshot
}

// NoticeMsg surfaces a transient notification line.
type NoticeMsg struct {
	Message  string
	Severity types.Severity
}

// PongMsg carries the measured link round-trip latency.
type PongMsg struct {
	Latency time.Duration
}

// ConnStateMsg reports a connection state transition.
type ConnStateMsg struct {
	From    stream.State
	To      stream.State
	Attempt int
}

// noticeExpiredMsg clears the notice line when its timer fires. The seq
// guard keeps a stale timer from clearing a newer notice.
type noticeExpiredMsg struct {
	seq int
}

// NewProgramHandlers returns dispatch handlers that forward every routed
// payload into the program's event loop.
func NewProgramHandlers(p *tea.Program) dispatch.Handlers {
	onIntelligence := dispatch.OnIntelligenceCallback(func(update types.IntelligenceUpdate) {
		p.Send(IntelligenceMsg{Update: update})
	})
	onSnapshot := dispatch.OnSnapshotCallback(func(snapshot types.DashboardSnapshot) {
		p.Send(SnapshotMsg{Snapshot: snapshot})
	})
	onNotification := dispatch.OnNotificationCallback(func(message string, severity types.Severity) {
		p.Send(NoticeMsg{Message: message, Severity: severity})
	})
	onPong := dispatch.OnPongCallback(func(latency time.Duration) {
		p.Send(PongMsg{Latency: latency})
	})

	return dispatch.Handlers{
		OnIntelligence: &onIntelligence,
		OnSnapshot:     &onSnapshot,
		OnNotification: &onNotification,
		OnPong:         &onPong,
	}
}

// NewStateListener returns a state callback that forwards transitions into
// the program's event loop.
func NewStateListener(p *tea.Program) stream.OnStateChangeCallback {
	return func(from stream.State, to stream.State, attempt int) {
		p.Send(ConnStateMsg{From: from, To: to, Attempt: attempt})
	}
}
