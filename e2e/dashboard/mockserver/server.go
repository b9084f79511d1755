// Package mockserver provides a mock dashboard feed server for end-to-end
// testing. It speaks the same websocket protocol as the production backend:
// a connection greeting, scheduled intelligence and snapshot broadcasts, and
// responses to the client commands ping, request_update and set_preferences.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/mocks"
)

// ServerConfig holds the configuration for the mock server.
type ServerConfig struct {
	// Feed configures the generated traffic. The zero value falls back to
	// mocks.DefaultFeedConfig.
	Feed mocks.FeedConfig

	// FeedSeed seeds the traffic generator for reproducible runs.
	FeedSeed int64

	// StreamInterval is the delay between scheduled broadcasts on each
	// connection. Zero disables automatic streaming so tests can drive
	// traffic through the Emit helpers instead.
	StreamInterval time.Duration

	// ServerVersion is advertised in the connection greeting when set.
	ServerVersion string
}

// ReceivedCommand records one inbound client command for test assertions.
type ReceivedCommand struct {
	ConnectionID string
	Type         types.MessageType
	Raw          []byte
}

// MockDashboardServer mimics the backend's dashboard feed endpoint.
type MockDashboardServer struct {
	mu              sync.RWMutex
	httpServer      *http.Server
	listener        net.Listener
	stopped         bool
	commands        []ReceivedCommand
	lastPreferences *types.Preferences

	// WebSocket handling
	upgrader  websocket.Upgrader
	clients   map[string]*client
	clientsMu sync.RWMutex

	// Traffic generation
	feed       *mocks.FeedGenerator
	feedConfig mocks.FeedConfig
	feedMu     sync.Mutex

	streamInterval time.Duration
	serverVersion  string
	stopStreaming  chan struct{}
}

// client pairs a websocket connection with its id. The mutex serializes
// writes; the read loop, the stream loop and Emit broadcasts can all target
// the same connection.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// greetingFrame is the first frame sent on every new connection.
type greetingFrame struct {
	Type          types.MessageType `json:"type"`
	Message       string            `json:"message"`
	ConnectionID  string            `json:"connection_id"`
	ServerVersion string            `json:"server_version,omitempty"`
}

// intelligenceFrame carries narratives grouped by asset class.
type intelligenceFrame struct {
	Type      types.MessageType                      `json:"type"`
	Data      map[types.AssetClass][]types.Narrative `json:"data"`
	Timestamp types.Timestamp                        `json:"timestamp"`
}

// snapshotFrame flattens the snapshot fields next to the type tag, matching
// the backend's top-level snapshot layout.
type snapshotFrame struct {
	Type types.MessageType `json:"type"`
	types.DashboardSnapshot
}

// pongFrame echoes the client's ping timestamp.
type pongFrame struct {
	Type      types.MessageType `json:"type"`
	Timestamp string            `json:"timestamp"`
}

// ackFrame confirms a set_preferences command.
type ackFrame struct {
	Type        types.MessageType  `json:"type"`
	Preferences *types.Preferences `json:"preferences,omitempty"`
}

// errorFrame reports a server-side problem to the client.
type errorFrame struct {
	Type    types.MessageType `json:"type"`
	Message string            `json:"message"`
}

// inboundCommand is the envelope for commands the client sends.
type inboundCommand struct {
	Type        types.MessageType  `json:"type"`
	Timestamp   string             `json:"timestamp"`
	Preferences *types.Preferences `json:"preferences"`
}

// NewMockDashboardServer creates a new mock server with the given
// configuration.
func NewMockDashboardServer(serverConfig ServerConfig) *MockDashboardServer {
	feedConfig := serverConfig.Feed
	if len(feedConfig.Pairs) == 0 {
		feedConfig = mocks.DefaultFeedConfig()
	}

	seed := serverConfig.FeedSeed
	if seed == 0 {
		seed = 1
	}

	return &MockDashboardServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients:        make(map[string]*client),
		feed:           mocks.NewFeedGenerator(seed),
		feedConfig:     feedConfig,
		streamInterval: serverConfig.StreamInterval,
		serverVersion:  serverConfig.ServerVersion,
		stopStreaming:  make(chan struct{}),
	}
}

// Start starts the mock server on the given address.
// Use ":0" for a random port.
func (s *MockDashboardServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	router := mux.NewRouter()
	router.HandleFunc(config.StreamPath, s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("Mock dashboard server error: %v", serveErr)
		}
	}()

	return nil
}

// Stop stops the mock server. Safe to call more than once.
func (s *MockDashboardServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}

	s.stopped = true
	s.mu.Unlock()

	close(s.stopStreaming)
	s.CloseClients()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Address returns the address the server is listening on.
func (s *MockDashboardServer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL. Passing it to config.TestConfig gives a
// client configuration pointing at this server.
func (s *MockDashboardServer) BaseURL() string {
	return "http://" + s.Address()
}

// WebSocketURL returns the full websocket endpoint URL.
func (s *MockDashboardServer) WebSocketURL() string {
	return "ws://" + s.Address() + config.StreamPath
}

// ClientCount returns the number of currently connected clients.
func (s *MockDashboardServer) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	return len(s.clients)
}

// CloseClients force-drops every websocket connection while leaving the
// server running, so client reconnect behavior can be exercised.
func (s *MockDashboardServer) CloseClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for _, c := range s.clients {
		c.conn.Close()
	}

	s.clients = make(map[string]*client)
}

// ReceivedCommands returns a copy of every command clients have sent.
func (s *MockDashboardServer) ReceivedCommands() []ReceivedCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commands := make([]ReceivedCommand, len(s.commands))
	copy(commands, s.commands)

	return commands
}

// CommandsOfType returns the received commands with the given type.
func (s *MockDashboardServer) CommandsOfType(commandType types.MessageType) []ReceivedCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []ReceivedCommand

	for _, command := range s.commands {
		if command.Type == commandType {
			matched = append(matched, command)
		}
	}

	return matched
}

// LastPreferences returns the most recent preferences a client pushed, or
// nil when no set_preferences command has arrived yet.
func (s *MockDashboardServer) LastPreferences() *types.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastPreferences == nil {
		return nil
	}

	preferences := *s.lastPreferences

	return &preferences
}

// EmitIntelligence broadcasts a scheduled intelligence update to every
// connected client.
func (s *MockDashboardServer) EmitIntelligence() error {
	return s.Broadcast(s.nextIntelligence(false))
}

// EmitSnapshot broadcasts a dashboard snapshot to every connected client.
func (s *MockDashboardServer) EmitSnapshot() error {
	return s.Broadcast(s.nextSnapshot())
}

// EmitError broadcasts a server error frame to every connected client.
func (s *MockDashboardServer) EmitError(message string) error {
	return s.Broadcast(errorFrame{
		Type:    types.MessageTypeError,
		Message: message,
	})
}

// Broadcast sends an arbitrary JSON payload to every connected client.
func (s *MockDashboardServer) Broadcast(payload any) error {
	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))

	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	var firstErr error

	for _, c := range targets {
		if err := s.writeJSON(c, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// handleWebSocket upgrades the connection, sends the greeting and serves
// commands until the client disconnects.
func (s *MockDashboardServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	greeting := greetingFrame{
		Type:          types.MessageTypeConnectionEstablished,
		Message:       "Connected to market intelligence feed",
		ConnectionID:  c.id,
		ServerVersion: s.serverVersion,
	}
	if err := s.writeJSON(c, greeting); err != nil {
		return
	}

	if s.streamInterval > 0 {
		go s.streamFeed(c)
	}

	s.readCommands(c)
}

// readCommands handles inbound client commands until the connection drops.
func (s *MockDashboardServer) readCommands(c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var command inboundCommand
		if err := json.Unmarshal(raw, &command); err != nil {
			// A write failure here surfaces as a read error on the next
			// iteration, so reply errors are not tracked separately.
			_ = s.writeJSON(c, errorFrame{
				Type:    types.MessageTypeError,
				Message: "invalid JSON payload",
			})

			continue
		}

		s.recordCommand(c.id, command.Type, raw)

		switch command.Type {
		case types.MessageTypePing:
			_ = s.writeJSON(c, pongFrame{
				Type:      types.MessageTypePong,
				Timestamp: command.Timestamp,
			})
		case types.MessageTypeRequestUpdate:
			_ = s.writeJSON(c, s.nextIntelligence(true))
		case types.MessageTypeSetPreferences:
			if command.Preferences == nil {
				_ = s.writeJSON(c, errorFrame{
					Type:    types.MessageTypeError,
					Message: "set_preferences requires a preferences object",
				})

				continue
			}

			s.storePreferences(command.Preferences)
			_ = s.writeJSON(c, ackFrame{
				Type:        types.MessageTypePreferencesUpdated,
				Preferences: command.Preferences,
			})
		default:
			_ = s.writeJSON(c, errorFrame{
				Type:    types.MessageTypeError,
				Message: fmt.Sprintf("unknown command type %q", command.Type),
			})
		}
	}
}

// streamFeed pushes alternating intelligence and snapshot frames to one
// connection until it drops or the server stops.
func (s *MockDashboardServer) streamFeed(c *client) {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	sendSnapshot := false

	for {
		select {
		case <-s.stopStreaming:
			return
		case <-ticker.C:
			var payload any
			if sendSnapshot {
				payload = s.nextSnapshot()
			} else {
				payload = s.nextIntelligence(false)
			}

			if err := s.writeJSON(c, payload); err != nil {
				return
			}

			sendSnapshot = !sendSnapshot
		}
	}
}

// nextIntelligence generates the next intelligence frame. The generator's
// random source is not safe for concurrent use, so generation is serialized.
func (s *MockDashboardServer) nextIntelligence(immediate bool) intelligenceFrame {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	feedConfig := s.feedConfig
	feedConfig.At = time.Now().UTC()
	update := s.feed.Intelligence(feedConfig)

	frameType := types.MessageTypeMarketIntelligence
	if immediate {
		frameType = types.MessageTypeImmediateUpdate
	}

	return intelligenceFrame{
		Type:      frameType,
		Data:      update.Classes,
		Timestamp: update.Timestamp,
	}
}

// nextSnapshot generates the next snapshot frame.
func (s *MockDashboardServer) nextSnapshot() snapshotFrame {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	feedConfig := s.feedConfig
	feedConfig.At = time.Now().UTC()

	return snapshotFrame{
		Type:              types.MessageTypeDashboardSnapshot,
		DashboardSnapshot: s.feed.Snapshot(feedConfig),
	}
}

func (s *MockDashboardServer) recordCommand(connectionID string, commandType types.MessageType, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, ReceivedCommand{
		ConnectionID: connectionID,
		Type:         commandType,
		Raw:          raw,
	})
}

func (s *MockDashboardServer) storePreferences(preferences *types.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *preferences
	s.lastPreferences = &stored
}

func (s *MockDashboardServer) writeJSON(c *client, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(payload)
}
