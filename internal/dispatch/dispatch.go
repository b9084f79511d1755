// Package dispatch decodes inbound dashboard frames and routes them to
// typed handler callbacks. A malformed frame is logged and dropped; it
// never disturbs the connection.
package dispatch

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/lunarcap/marketdeck/internal/logger"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/internal/version"
	"go.uber.org/zap"
)

// OnIntelligenceCallback is called for market_intelligence and
// immediate_update frames with the decoded per-asset-class narratives.
type OnIntelligenceCallback func(update types.IntelligenceUpdate)

// OnSnapshotCallback is called for dashboard_snapshot frames. The snapshot
// may be partial; absent fields carry no value.
type OnSnapshotCallback func(snapshot types.DashboardSnapshot)

// OnNotificationCallback is called for frames that surface a transient
// notice to the user.
type OnNotificationCallback func(message string, severity types.Severity)

// OnPongCallback is called with the measured round-trip latency when the
// server echoes a ping timestamp back.
type OnPongCallback func(latency time.Duration)

// Handlers holds the routing callbacks. All fields are pointers - nil means
// frames of that kind are decoded and counted but not delivered.
type Handlers struct {
	// OnIntelligence receives market_intelligence and immediate_update frames.
	OnIntelligence *OnIntelligenceCallback

	// OnSnapshot receives dashboard_snapshot frames.
	OnSnapshot *OnSnapshotCallback

	// OnNotification receives transient notices (server errors, preference
	// confirmations, connection banners).
	OnNotification *OnNotificationCallback

	// OnPong receives the link round-trip latency.
	OnPong *OnPongCallback
}

// Stats reports cumulative dispatch counters.
type Stats struct {
	// Received counts every frame handed to Dispatch.
	Received int64

	// Routed counts frames decoded and routed to a known type.
	Routed int64

	// ParseErrors counts frames dropped because they could not be decoded.
	ParseErrors int64

	// Unknown counts frames ignored because their type is unrecognized.
	Unknown int64
}

// Dispatcher routes inbound frames by their type discriminator. Dispatch is
// driven by the connection manager's read loop and is never called
// concurrently; the counters are atomic so Stats can be read from other
// goroutines.
type Dispatcher struct {
	handlers Handlers
	log      *logger.Logger

	received    atomic.Int64
	routed      atomic.Int64
	parseErrors atomic.Int64
	unknown     atomic.Int64
}

var _ stream.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher routing frames to the given handlers.
func NewDispatcher(handlers Handlers, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = &logger.Logger{Logger: zap.NewNop()}
	}

	return &Dispatcher{ //nolint:exhaustruct
		handlers: handlers,
		log:      log,
	}
}

// envelope carries the fields shared by inbound frames. Payload fields stay
// raw until the type is known.
type envelope struct {
	Type          types.MessageType `json:"type"`
	Message       string            `json:"message"`
	AssetClass    types.AssetClass  `json:"asset_class"`
	Timestamp     types.Timestamp   `json:"timestamp"`
	ServerVersion string            `json:"server_version"`
	Data          json.RawMessage   `json:"data"`
}

// Dispatch decodes one raw frame and routes it. Unknown types are ignored
// for forward compatibility; decode failures drop the frame.
func (d *Dispatcher) Dispatch(frame []byte) {
	d.received.Add(1)

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		d.parseErrors.Add(1)
		d.log.Warn("dropping malformed frame", zap.Error(err))

		return
	}

	switch env.Type {
	case types.MessageTypeMarketIntelligence:
		d.handleIntelligence(env, false)
	case types.MessageTypeImmediateUpdate:
		d.handleIntelligence(env, true)
	case types.MessageTypeDashboardSnapshot:
		d.handleSnapshot(frame)
	case types.MessageTypePreferencesUpdated:
		d.routed.Add(1)
		d.notify("Preferences updated", types.SeveritySuccess)
	case types.MessageTypeError:
		d.routed.Add(1)

		message := env.Message
		if message == "" {
			message = "server reported an error"
		}

		d.notify(message, types.SeverityDanger)
	case types.MessageTypeConnectionEstablished:
		d.routed.Add(1)

		message := env.Message
		if message == "" {
			message = "Connection established"
		}

		d.notify(message, types.SeverityInfo)
		d.checkServerVersion(env.ServerVersion)
	case types.MessageTypePong:
		d.handlePong(env)
	default:
		d.unknown.Add(1)
		d.log.Debug("ignoring unknown frame type", zap.String("type", string(env.Type)))
	}
}

// Stats returns cumulative dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:    d.received.Load(),
		Routed:      d.routed.Load(),
		ParseErrors: d.parseErrors.Load(),
		Unknown:     d.unknown.Load(),
	}
}

// handleIntelligence decodes the per-asset-class payload. The dashboard feed
// sends a class-to-narratives mapping; the older per-class feeds send a bare
// narrative list with the class named on the envelope. Both are routed as an
// IntelligenceUpdate.
func (d *Dispatcher) handleIntelligence(env envelope, immediate bool) {
	classes := map[types.AssetClass][]types.Narrative{}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &classes); err != nil {
			var narratives []types.Narrative

			listErr := json.Unmarshal(env.Data, &narratives)
			if listErr != nil || !env.AssetClass.Valid() {
				d.parseErrors.Add(1)
				d.log.Warn("dropping intelligence frame with malformed payload",
					zap.String("type", string(env.Type)),
					zap.Error(err))

				return
			}

			classes[env.AssetClass] = narratives
		}
	}

	timestamp := env.Timestamp
	if timestamp.IsZero() {
		timestamp = types.NewTimestamp(time.Now().UTC())
	}

	d.routed.Add(1)

	if d.handlers.OnIntelligence != nil {
		(*d.handlers.OnIntelligence)(types.IntelligenceUpdate{
			Classes:   classes,
			Timestamp: timestamp,
			Immediate: immediate,
		})
	}
}

// handleSnapshot decodes the flat metrics payload. Fields the server omitted
// stay None so the receiving widgets keep their prior content.
func (d *Dispatcher) handleSnapshot(frame []byte) {
	var snapshot types.DashboardSnapshot
	if err := json.Unmarshal(frame, &snapshot); err != nil {
		d.parseErrors.Add(1)
		d.log.Warn("dropping malformed snapshot frame", zap.Error(err))

		return
	}

	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = types.NewTimestamp(time.Now().UTC())
	}

	d.routed.Add(1)

	if d.handlers.OnSnapshot != nil {
		(*d.handlers.OnSnapshot)(snapshot)
	}
}

// handlePong turns the echoed ping timestamp into a round-trip latency.
// Pongs without a parseable echo are counted but not surfaced.
func (d *Dispatcher) handlePong(env envelope) {
	d.routed.Add(1)

	if env.Timestamp.IsZero() {
		return
	}

	latency := time.Since(env.Timestamp.Time)
	if latency < 0 {
		latency = 0
	}

	if d.handlers.OnPong != nil {
		(*d.handlers.OnPong)(latency)
	}
}

func (d *Dispatcher) notify(message string, severity types.Severity) {
	if d.handlers.OnNotification != nil {
		(*d.handlers.OnNotification)(message, severity)
	}
}

// checkServerVersion surfaces protocol drift as a warning. The stream keeps
// running either way; both sides ignore frame types they do not know.
func (d *Dispatcher) checkServerVersion(serverVersion string) {
	if serverVersion == "" {
		return
	}

	err := version.CheckProtocolCompatibility(version.GetVersion(), serverVersion)
	if err == nil {
		return
	}

	d.log.Warn("server protocol version drift",
		zap.String("client_version", version.GetVersion()),
		zap.String("server_version", serverVersion),
		zap.Error(err))
	d.notify("Server protocol version differs from this client, some widgets may not update", types.SeverityWarning)
}
