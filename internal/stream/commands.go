package stream

import (
	"github.com/lunarcap/marketdeck/internal/types"
)

// requestUpdateCommand asks the server for an immediate intelligence
// refresh.
type requestUpdateCommand struct {
	Type types.MessageType `json:"type"`
}

// setPreferencesCommand replaces the server-side delivery preferences for
// this connection.
type setPreferencesCommand struct {
	Type        types.MessageType `json:"type"`
	Preferences types.Preferences `json:"preferences"`
}

// pingCommand carries the client send time; the server echoes it back in
// the pong so the dispatcher can measure round-trip latency.
type pingCommand struct {
	Type      types.MessageType `json:"type"`
	Timestamp string            `json:"timestamp"`
}
