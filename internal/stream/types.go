// Package stream manages the websocket connection to the dashboard feed.
//
// A single Manager owns the connection lifecycle: it dials the endpoint,
// delivers inbound frames to a dispatcher in arrival order, and schedules
// exponential-backoff reconnects when the connection drops. Outbound
// commands are dropped with a typed error while the connection is not
// open; the server rebroadcasts full state on reconnect, so nothing is
// queued.
package stream

import "context"

// State identifies the connection lifecycle phase.
type State string

const (
	// StateIdle means Start has not been called yet.
	StateIdle State = "idle"

	// StateConnecting means the initial dial is in progress.
	StateConnecting State = "connecting"

	// StateOpen means the connection is established and frames flow.
	StateOpen State = "open"

	// StateReconnecting means the connection dropped and a reconnect is
	// pending or in progress.
	StateReconnecting State = "reconnecting"

	// StateClosed means Stop was called. The state is terminal.
	StateClosed State = "closed"
)

// Conn is a single established websocket connection.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection
	// fails.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one text frame. Safe for concurrent use.
	WriteMessage(data []byte) error

	// Close tears the connection down, unblocking any pending read.
	Close() error
}

// Dialer establishes websocket connections.
type Dialer interface {
	// Dial connects to the given websocket endpoint.
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Dispatcher consumes inbound frames in arrival order.
type Dispatcher interface {
	// Dispatch handles one raw frame. It is never called concurrently
	// and never called after Manager.Stop returns.
	Dispatch(frame []byte)
}

// OnStateChangeCallback is invoked whenever the connection state changes
// and whenever a reconnect attempt is scheduled. The attempt counter is
// the number of reconnect attempts scheduled since the last successful
// open. The callback runs on the manager's internal goroutines; it must
// return quickly and must not call back into the Manager.
type OnStateChangeCallback func(from State, to State, attempt int)

// Stats reports counters for the connection lifecycle.
type Stats struct {
	// State is the current connection state.
	State State

	// Attempts is the number of reconnect attempts scheduled since the
	// last successful open.
	Attempts int

	// FramesReceived counts inbound frames delivered to the dispatcher.
	FramesReceived int64

	// FramesSent counts outbound frames written to the socket.
	FramesSent int64

	// Reconnects counts scheduled reconnect attempts over the manager's
	// lifetime.
	Reconnects int64

	// SendsDropped counts outbound commands rejected because the
	// connection was not open.
	SendsDropped int64
}
