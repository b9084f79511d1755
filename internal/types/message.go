package types

// MessageType tags every frame exchanged on the dashboard stream.
type MessageType string

// Inbound message types.
const (
	MessageTypeMarketIntelligence    MessageType = "market_intelligence"
	MessageTypeImmediateUpdate       MessageType = "immediate_update"
	MessageTypeDashboardSnapshot     MessageType = "dashboard_snapshot"
	MessageTypePreferencesUpdated    MessageType = "preferences_updated"
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypePong                  MessageType = "pong"
	MessageTypeError                 MessageType = "error"
)

// Outbound message types.
const (
	MessageTypeRequestUpdate  MessageType = "request_update"
	MessageTypeSetPreferences MessageType = "set_preferences"
	MessageTypePing           MessageType = "ping"
)

// Preferences are the per-connection delivery preferences the server
// honors for this client.
type Preferences struct {
	// AssetClasses restricts which feeds the server broadcasts. Empty
	// means all classes.
	AssetClasses []AssetClass `json:"asset_classes,omitempty"`

	// MinPriority filters out narratives below the given priority.
	MinPriority Priority `json:"min_priority,omitempty"`
}
