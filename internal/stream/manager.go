package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lunarcap/marketdeck/internal/backoff"
	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/logger"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/pkg/errors"
	"go.uber.org/zap"
)

// Manager owns the websocket connection to the dashboard feed. It moves
// through Idle -> Connecting -> Open, drops to Reconnecting when the
// connection fails, and ends in Closed once Stop is called.
//
// The generation counter invalidates events from connections that have
// already been replaced: a socket error, a late dial result, or a stale
// reconnect timer from an earlier connection is ignored instead of
// scheduling a duplicate reconnect.
type Manager struct {
	endpoint string
	cfg      config.StreamConfig
	log      *logger.Logger
	policy   *backoff.Policy

	mu            sync.Mutex
	state         State
	conn          Conn
	connID        string
	dialer        Dialer
	dispatcher    Dispatcher
	onStateChange *OnStateChangeCallback
	attempts      int
	generation    int
	timer         *time.Timer
	stopped       bool
	ctx           context.Context
	cancel        context.CancelFunc

	wg sync.WaitGroup

	framesReceived atomic.Int64
	framesSent     atomic.Int64
	reconnects     atomic.Int64
	sendsDropped   atomic.Int64
}

// NewManager creates a Manager for the given websocket endpoint. Zero
// values in cfg fall back to the package defaults in internal/config.
func NewManager(endpoint string, cfg config.StreamConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = &logger.Logger{Logger: zap.NewNop()}
	}

	base := cfg.ReconnectBaseDelay.Duration
	if base <= 0 {
		base = config.DefaultReconnectBaseDelay
	}

	maxDelay := cfg.ReconnectMaxDelay.Duration
	if maxDelay < base {
		maxDelay = config.DefaultReconnectMaxDelay
	}

	handshakeTimeout := cfg.HandshakeTimeout.Duration
	if handshakeTimeout <= 0 {
		handshakeTimeout = config.DefaultHandshakeTimeout
	}

	writeTimeout := cfg.WriteTimeout.Duration
	if writeTimeout <= 0 {
		writeTimeout = config.DefaultWriteTimeout
	}

	return &Manager{ //nolint:exhaustruct
		endpoint: endpoint,
		cfg:      cfg,
		log:      log,
		policy:   backoff.NewPolicy(base, maxDelay, cfg.ReconnectJitter),
		dialer:   NewWebsocketDialer(handshakeTimeout, writeTimeout),
		state:    StateIdle,
	}
}

// SetDialer overrides the websocket dialer. Tests inject fakes here.
// Must be called before Start.
func (m *Manager) SetDialer(dialer Dialer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dialer = dialer
}

// SetDispatcher sets the consumer for inbound frames. Must be called
// before Start.
func (m *Manager) SetDispatcher(dispatcher Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatcher = dispatcher
}

// SetOnStateChange registers the state listener. Must be called before
// Start.
func (m *Manager) SetOnStateChange(callback OnStateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onStateChange = &callback
}

// Start dials the endpoint and begins delivering frames. It returns
// immediately; connection progress is reported through the state
// listener. Cancelling ctx stops the manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeAlreadyStarted, "stream manager cannot start from state %q", state)
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	generation := m.generation
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go func() {
		<-runCtx.Done()
		m.Stop()
	}()

	go m.dial(runCtx, generation)

	return nil
}

// Stop closes the connection, cancels any pending reconnect, and waits
// for in-flight dispatch to finish. No frames are delivered after Stop
// returns. Stop is idempotent. It must not be called from dispatcher or
// state callbacks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()

		return
	}

	m.stopped = true
	m.generation++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if m.cancel != nil {
		m.cancel()
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("stream manager stopped")
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Stats returns current connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	state := m.state
	attempts := m.attempts
	m.mu.Unlock()

	return Stats{
		State:          state,
		Attempts:       attempts,
		FramesReceived: m.framesReceived.Load(),
		FramesSent:     m.framesSent.Load(),
		Reconnects:     m.reconnects.Load(),
		SendsDropped:   m.sendsDropped.Load(),
	}
}

// Send encodes a command and writes it to the open connection. Commands
// are dropped with ErrCodeNotConnected while the connection is down; the
// server rebroadcasts full state after a reconnect, so nothing is queued.
func (m *Manager) Send(command any) error {
	payload, err := json.Marshal(command)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncodeFailed, "failed to encode outbound command", err)
	}

	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != StateOpen || conn == nil {
		m.sendsDropped.Add(1)

		return errors.Newf(errors.ErrCodeNotConnected, "cannot send while connection is %s", state)
	}

	if err := conn.WriteMessage(payload); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to write frame", err)
	}

	m.framesSent.Add(1)

	return nil
}

// RequestUpdate asks the server for an immediate intelligence refresh.
func (m *Manager) RequestUpdate() error {
	return m.Send(requestUpdateCommand{Type: types.MessageTypeRequestUpdate})
}

// UpdatePreferences replaces the server-side delivery preferences for
// this connection.
func (m *Manager) UpdatePreferences(preferences types.Preferences) error {
	for _, class := range preferences.AssetClasses {
		if !class.Valid() {
			return errors.Newf(errors.ErrCodeInvalidPreferences, "unknown asset class %q", class)
		}
	}

	switch preferences.MinPriority {
	case "", types.PriorityLow, types.PriorityMedium, types.PriorityHigh:
	default:
		return errors.Newf(errors.ErrCodeInvalidPreferences, "unknown priority %q", preferences.MinPriority)
	}

	return m.Send(setPreferencesCommand{
		Type:        types.MessageTypeSetPreferences,
		Preferences: preferences,
	})
}

// dial attempts one connection. On success it resets the attempt counter
// and starts the read and ping loops; on failure it schedules the next
// reconnect. Each attempt gets its own connection id so the connect and
// loss log lines of overlapping attempts stay attributable.
func (m *Manager) dial(ctx context.Context, generation int) {
	connID := uuid.NewString()

	m.log.Info("dialing stream endpoint",
		zap.String("endpoint", m.endpoint),
		zap.String("conn_id", connID))

	conn, err := m.dialer.Dial(ctx, m.endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || generation != m.generation {
		// Raced with Stop or a newer connection attempt.
		if err == nil {
			_ = conn.Close()
		}

		return
	}

	if err != nil {
		m.log.Warn("dial failed",
			zap.String("endpoint", m.endpoint),
			zap.String("conn_id", connID),
			zap.Int("attempt", m.attempts),
			zap.Error(err))
		m.scheduleReconnectLocked()

		return
	}

	m.conn = conn
	m.connID = connID
	m.attempts = 0
	m.setStateLocked(StateOpen)
	m.log.Info("stream connected",
		zap.String("endpoint", m.endpoint),
		zap.String("conn_id", connID))

	m.wg.Add(2)

	go m.readLoop(conn, generation)
	go m.pingLoop(ctx, conn, generation)
}

// readLoop delivers frames from one connection until it fails or the
// manager stops.
func (m *Manager) readLoop(conn Conn, generation int) {
	defer m.wg.Done()

	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(generation, err)

			return
		}

		if !m.deliver(generation, frame) {
			return
		}
	}
}

// deliver hands one frame to the dispatcher. It returns false when the
// frame was discarded because the manager stopped or the connection was
// replaced.
func (m *Manager) deliver(generation int, frame []byte) bool {
	m.mu.Lock()
	if m.stopped || generation != m.generation {
		m.mu.Unlock()

		return false
	}
	dispatcher := m.dispatcher
	m.mu.Unlock()

	m.framesReceived.Add(1)

	if dispatcher != nil {
		dispatcher.Dispatch(frame)
	}

	return true
}

// handleReadError retires the failed connection and schedules a
// reconnect. Errors from connections that were already replaced are
// ignored, so repeated close events cannot stack reconnect timers.
func (m *Manager) handleReadError(generation int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || generation != m.generation {
		return
	}

	m.generation++

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.log.Warn("stream connection lost",
		zap.String("conn_id", m.connID),
		zap.Error(err))
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer and moves the state to
// Reconnecting. At most one timer is pending at a time. The delay for the
// n-th attempt since the last successful open doubles from the base delay
// up to the cap. Callers must hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.stopped || m.timer != nil {
		return
	}

	delay := m.policy.Delay(m.attempts)
	m.attempts++
	m.reconnects.Add(1)

	from := m.state
	m.state = StateReconnecting
	m.log.Info("reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", m.attempts))

	if m.onStateChange != nil {
		(*m.onStateChange)(from, StateReconnecting, m.attempts)
	}

	generation := m.generation
	m.timer = time.AfterFunc(delay, func() {
		m.reconnect(generation)
	})
}

// reconnect runs when the backoff timer fires.
func (m *Manager) reconnect(generation int) {
	m.mu.Lock()
	m.timer = nil

	if m.stopped || generation != m.generation {
		m.mu.Unlock()

		return
	}

	ctx := m.ctx
	m.mu.Unlock()

	m.dial(ctx, generation)
}

// pingLoop sends application-level pings while the connection is open.
// The server echoes the timestamp back so round-trip latency can be
// measured.
func (m *Manager) pingLoop(ctx context.Context, conn Conn, generation int) {
	defer m.wg.Done()

	interval := m.cfg.PingInterval.Duration
	if interval <= 0 {
		interval = config.DefaultPingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		current := !m.stopped && generation == m.generation && m.state == StateOpen
		m.mu.Unlock()

		if !current {
			return
		}

		ping := pingCommand{
			Type:      types.MessageTypePing,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}

		payload, err := json.Marshal(ping)
		if err != nil {
			m.log.Error("failed to encode ping", zap.Error(err))

			return
		}

		if err := conn.WriteMessage(payload); err != nil {
			// The read loop surfaces the failure.
			m.log.Debug("ping write failed", zap.Error(err))

			return
		}

		m.framesSent.Add(1)
	}
}

// setStateLocked moves the state machine and notifies the listener.
// Callers must hold m.mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}

	from := m.state
	m.state = next

	if m.onStateChange != nil {
		(*m.onStateChange)(from, next, m.attempts)
	}
}
