package stream_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/mocks"
	"github.com/lunarcap/marketdeck/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

// connScript drives a MockConn from channels so tests control exactly when
// frames arrive and when the connection drops. Closing the connection
// unblocks a pending read with net.ErrClosed, the same way a real socket
// close surfaces.
type connScript struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newConnScript() *connScript {
	return &connScript{ //nolint:exhaustruct
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (s *connScript) bind(ctrl *gomock.Controller) *mocks.MockConn {
	conn := mocks.NewMockConn(ctrl)
	conn.EXPECT().ReadMessage().DoAndReturn(s.read).AnyTimes()
	conn.EXPECT().WriteMessage(gomock.Any()).DoAndReturn(s.write).AnyTimes()
	conn.EXPECT().Close().DoAndReturn(s.close).AnyTimes()

	return conn
}

func (s *connScript) read() ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

func (s *connScript) write(frame []byte) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.written = append(s.written, append([]byte(nil), frame...))

	return nil
}

func (s *connScript) close() error {
	s.once.Do(func() { close(s.closed) })

	return nil
}

// drop simulates the server side killing the connection.
func (s *connScript) drop() {
	_ = s.close()
}

func (s *connScript) writtenFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]byte(nil), s.written...)
}

// stateRecorder captures every state change the manager reports.
type stateRecorder struct {
	mu      sync.Mutex
	changes []stateChange
}

type stateChange struct {
	from    stream.State
	to      stream.State
	attempt int
}

func (r *stateRecorder) record(from stream.State, to stream.State, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, stateChange{from: from, to: to, attempt: attempt})
}

func (r *stateRecorder) snapshot() []stateChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]stateChange(nil), r.changes...)
}

// frameRecorder captures frames handed to the dispatcher.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *frameRecorder) bind(ctrl *gomock.Controller) *mocks.MockDispatcher {
	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any()).Do(func(frame []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.frames = append(r.frames, append([]byte(nil), frame...))
	}).AnyTimes()

	return dispatcher
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.frames)
}

func (r *frameRecorder) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]byte(nil), r.frames...)
}

type ManagerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

// testStreamConfig keeps reconnect delays short enough for tests and the
// ping interval long enough to stay out of the way.
func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{ //nolint:exhaustruct
		ReconnectBaseDelay: config.Duration{Duration: 20 * time.Millisecond},
		ReconnectMaxDelay:  config.Duration{Duration: 100 * time.Millisecond},
		PingInterval:       config.Duration{Duration: time.Hour},
	}
}

func (suite *ManagerTestSuite) newManager(dialer stream.Dialer, dispatcher stream.Dispatcher) *stream.Manager {
	manager := stream.NewManager("ws://deck.lunarcap.io/ws/dashboard/", testStreamConfig(), nil)

	if dialer != nil {
		manager.SetDialer(dialer)
	}

	if dispatcher != nil {
		manager.SetDispatcher(dispatcher)
	}

	return manager
}

func (suite *ManagerTestSuite) waitForState(manager *stream.Manager, want stream.State) {
	suite.Require().Eventually(func() bool {
		return manager.State() == want
	}, 2*time.Second, 5*time.Millisecond, "manager never reached state %s", want)
}

func (suite *ManagerTestSuite) singleConnDialer(script *connScript) *mocks.MockDialer {
	dialer := mocks.NewMockDialer(suite.ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, endpoint string) (stream.Conn, error) {
			return script.bind(suite.ctrl), nil
		}).AnyTimes()

	return dialer
}

func (suite *ManagerTestSuite) TestDeliversFramesInOrder() {
	script := newConnScript()

	for i := 0; i < 20; i++ {
		script.frames <- []byte(fmt.Sprintf(`{"type":"pong","seq":%d}`, i))
	}

	rec := &frameRecorder{} //nolint:exhaustruct
	manager := suite.newManager(suite.singleConnDialer(script), rec.bind(suite.ctrl))

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	suite.Require().Eventually(func() bool {
		return rec.count() == 20
	}, 2*time.Second, 5*time.Millisecond)

	frames := rec.snapshot()
	for i, frame := range frames {
		suite.Equal(fmt.Sprintf(`{"type":"pong","seq":%d}`, i), string(frame))
	}

	stats := manager.Stats()
	suite.Equal(stream.StateOpen, stats.State)
	suite.Equal(int64(20), stats.FramesReceived)
	suite.Equal(int64(0), stats.Reconnects)

	manager.Stop()
	suite.Equal(stream.StateClosed, manager.State())
}

func (suite *ManagerTestSuite) TestReconnectRecoversAfterDialFailures() {
	script := newConnScript()

	var dials atomic.Int32

	dialer := mocks.NewMockDialer(suite.ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, endpoint string) (stream.Conn, error) {
			if dials.Add(1) <= 2 {
				return nil, fmt.Errorf("connection refused")
			}

			return script.bind(suite.ctrl), nil
		}).AnyTimes()

	rec := &stateRecorder{} //nolint:exhaustruct
	manager := suite.newManager(dialer, nil)
	manager.SetOnStateChange(rec.record)

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	suite.Equal([]stateChange{
		{from: stream.StateIdle, to: stream.StateConnecting, attempt: 0},
		{from: stream.StateConnecting, to: stream.StateReconnecting, attempt: 1},
		{from: stream.StateReconnecting, to: stream.StateReconnecting, attempt: 2},
		{from: stream.StateReconnecting, to: stream.StateOpen, attempt: 0},
	}, rec.snapshot())

	stats := manager.Stats()
	suite.Equal(int64(2), stats.Reconnects)
	suite.Equal(0, stats.Attempts)

	manager.Stop()
}

func (suite *ManagerTestSuite) TestAttemptCountRestartsAfterOpen() {
	first := newConnScript()
	second := newConnScript()

	var dials atomic.Int32

	dialer := mocks.NewMockDialer(suite.ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, endpoint string) (stream.Conn, error) {
			switch dials.Add(1) {
			case 1, 3:
				return nil, fmt.Errorf("connection refused")
			case 2:
				return first.bind(suite.ctrl), nil
			default:
				return second.bind(suite.ctrl), nil
			}
		}).AnyTimes()

	rec := &stateRecorder{} //nolint:exhaustruct
	manager := suite.newManager(dialer, nil)
	manager.SetOnStateChange(rec.record)

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	// Kill the first connection and let the manager work back to Open.
	first.drop()

	suite.Require().Eventually(func() bool {
		return manager.State() == stream.StateOpen && dials.Load() == 4
	}, 2*time.Second, 5*time.Millisecond)

	suite.Equal([]stateChange{
		{from: stream.StateIdle, to: stream.StateConnecting, attempt: 0},
		{from: stream.StateConnecting, to: stream.StateReconnecting, attempt: 1},
		{from: stream.StateReconnecting, to: stream.StateOpen, attempt: 0},
		{from: stream.StateOpen, to: stream.StateReconnecting, attempt: 1},
		{from: stream.StateReconnecting, to: stream.StateReconnecting, attempt: 2},
		{from: stream.StateReconnecting, to: stream.StateOpen, attempt: 0},
	}, rec.snapshot())

	manager.Stop()
}

func (suite *ManagerTestSuite) TestStopCancelsPendingReconnect() {
	dialer := mocks.NewMockDialer(suite.ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, endpoint string) (stream.Conn, error) {
			return nil, fmt.Errorf("connection refused")
		}).AnyTimes()

	manager := suite.newManager(dialer, nil)

	suite.Require().NoError(manager.Start(context.Background()))

	suite.Require().Eventually(func() bool {
		return manager.Stats().Reconnects >= 3
	}, 2*time.Second, 5*time.Millisecond)

	manager.Stop()
	suite.Equal(stream.StateClosed, manager.State())

	reconnects := manager.Stats().Reconnects

	// The armed timer was cancelled, so the count must not move again.
	time.Sleep(300 * time.Millisecond)
	suite.Equal(reconnects, manager.Stats().Reconnects)

	// Stop is idempotent and the manager stays terminal.
	manager.Stop()
	suite.Equal(stream.StateClosed, manager.State())

	err := manager.Start(context.Background())
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAlreadyStarted))
}

func (suite *ManagerTestSuite) TestNoDeliveryAfterStopReturns() {
	script := newConnScript()
	rec := &frameRecorder{} //nolint:exhaustruct
	manager := suite.newManager(suite.singleConnDialer(script), rec.bind(suite.ctrl))

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	stopFeed := make(chan struct{})
	feedDone := make(chan struct{})

	go func() {
		defer close(feedDone)

		seq := 0

		for {
			select {
			case <-stopFeed:
				return
			case script.frames <- []byte(fmt.Sprintf(`{"type":"pong","seq":%d}`, seq)):
				seq++
			}
		}
	}()

	suite.Require().Eventually(func() bool {
		return rec.count() > 10
	}, 2*time.Second, 5*time.Millisecond)

	manager.Stop()

	delivered := rec.count()

	time.Sleep(100 * time.Millisecond)
	suite.Equal(delivered, rec.count())

	close(stopFeed)
	<-feedDone
}

func (suite *ManagerTestSuite) TestSendDropsWhileDisconnected() {
	manager := suite.newManager(nil, nil)

	err := manager.RequestUpdate()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNotConnected))
	suite.Equal(int64(1), manager.Stats().SendsDropped)

	// Same while a reconnect is pending.
	dialer := mocks.NewMockDialer(suite.ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, endpoint string) (stream.Conn, error) {
			return nil, fmt.Errorf("connection refused")
		}).AnyTimes()

	reconnecting := suite.newManager(dialer, nil)

	suite.Require().NoError(reconnecting.Start(context.Background()))
	suite.waitForState(reconnecting, stream.StateReconnecting)

	err = reconnecting.UpdatePreferences(types.Preferences{
		AssetClasses: []types.AssetClass{types.AssetClassForex},
		MinPriority:  types.PriorityLow,
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNotConnected))

	reconnecting.Stop()
	time.Sleep(100 * time.Millisecond)
}

func (suite *ManagerTestSuite) TestSendWritesCommandsWhileOpen() {
	script := newConnScript()
	manager := suite.newManager(suite.singleConnDialer(script), nil)

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	suite.Require().NoError(manager.RequestUpdate())
	suite.Require().NoError(manager.UpdatePreferences(types.Preferences{
		AssetClasses: []types.AssetClass{types.AssetClassForex, types.AssetClassCrypto},
		MinPriority:  types.PriorityHigh,
	}))

	frames := script.writtenFrames()
	suite.Require().Len(frames, 2)
	suite.JSONEq(`{"type":"request_update"}`, string(frames[0]))
	suite.JSONEq(
		`{"type":"set_preferences","preferences":{"asset_classes":["forex","crypto"],"min_priority":"high"}}`,
		string(frames[1]))

	stats := manager.Stats()
	suite.Equal(int64(2), stats.FramesSent)
	suite.Equal(int64(0), stats.SendsDropped)

	manager.Stop()
}

func (suite *ManagerTestSuite) TestUpdatePreferencesRejectsInvalidInput() {
	manager := suite.newManager(nil, nil)

	err := manager.UpdatePreferences(types.Preferences{ //nolint:exhaustruct
		AssetClasses: []types.AssetClass{"bonds"},
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPreferences))

	err = manager.UpdatePreferences(types.Preferences{ //nolint:exhaustruct
		MinPriority: "urgent",
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPreferences))

	// Validation failures never count as dropped sends.
	suite.Equal(int64(0), manager.Stats().SendsDropped)
}

func (suite *ManagerTestSuite) TestContextCancelStopsManager() {
	script := newConnScript()
	manager := suite.newManager(suite.singleConnDialer(script), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.Require().NoError(manager.Start(ctx))
	suite.waitForState(manager, stream.StateOpen)

	cancel()
	suite.waitForState(manager, stream.StateClosed)
}

func (suite *ManagerTestSuite) TestStartTwiceFails() {
	script := newConnScript()
	manager := suite.newManager(suite.singleConnDialer(script), nil)

	suite.Require().NoError(manager.Start(context.Background()))
	suite.waitForState(manager, stream.StateOpen)

	err := manager.Start(context.Background())
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAlreadyStarted))

	manager.Stop()
}
