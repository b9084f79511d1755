// Package config loads and validates the streaming client configuration.
//
// Configuration is read from a YAML file. Environment variable references
// in the form ${VAR} are expanded before parsing, so secrets can stay out
// of the file itself. Every field is optional; missing values fall back to
// the defaults in defaults.go.
package config

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/lunarcap/marketdeck/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StreamPath is the websocket route the backend serves the dashboard feed on.
const StreamPath = "/ws/dashboard/"

// ClientConfig is the top-level configuration for the marketdeck client.
type ClientConfig struct {
	// Server holds the backend endpoint settings.
	Server ServerConfig `yaml:"server" json:"server"`

	// Stream holds the websocket connection settings.
	Stream StreamConfig `yaml:"stream" json:"stream"`

	// Dashboard holds the terminal UI settings.
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`

	// Log holds the logging settings.
	Log LogConfig `yaml:"log" json:"log"`
}

// ServerConfig identifies the backend the client connects to.
type ServerConfig struct {
	// URL is the backend base URL. The http and https schemes map to ws
	// and wss when the stream endpoint is derived.
	URL string `yaml:"url" json:"url" jsonschema:"title=Server URL,description=Backend base URL (http or https),example=http://localhost:8000" validate:"required,url"`
}

// StreamConfig tunes the websocket connection manager.
type StreamConfig struct {
	// ReconnectBaseDelay is the delay before the first reconnect attempt.
	ReconnectBaseDelay Duration `yaml:"reconnect_base_delay" json:"reconnect_base_delay" jsonschema:"title=Reconnect Base Delay,description=Delay before the first reconnect attempt"`

	// ReconnectMaxDelay caps the exponential reconnect delay.
	ReconnectMaxDelay Duration `yaml:"reconnect_max_delay" json:"reconnect_max_delay" jsonschema:"title=Reconnect Max Delay,description=Upper bound for the reconnect delay"`

	// ReconnectJitter randomizes reconnect delays between the base delay
	// and the computed value.
	ReconnectJitter bool `yaml:"reconnect_jitter" json:"reconnect_jitter" jsonschema:"title=Reconnect Jitter,description=Randomize reconnect delays"`

	// PingInterval is how often the client sends application-level pings.
	PingInterval Duration `yaml:"ping_interval" json:"ping_interval" jsonschema:"title=Ping Interval,description=Interval between application-level pings"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout Duration `yaml:"handshake_timeout" json:"handshake_timeout" jsonschema:"title=Handshake Timeout,description=Websocket dial timeout"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout Duration `yaml:"write_timeout" json:"write_timeout" jsonschema:"title=Write Timeout,description=Per-frame write timeout"`
}

// DashboardConfig tunes the terminal UI.
type DashboardConfig struct {
	// AssetClasses selects which intelligence feeds are rendered, in order.
	AssetClasses []string `yaml:"asset_classes" json:"asset_classes" jsonschema:"title=Asset Classes,description=Feeds to render in order,enum=forex,enum=stocks,enum=crypto" validate:"omitempty,dive,oneof=forex stocks crypto"`

	// MaxNarratives caps how many narratives each feed displays.
	MaxNarratives int `yaml:"max_narratives" json:"max_narratives" jsonschema:"title=Max Narratives,description=Narratives displayed per feed"`

	// MinPriority is the initial minimum priority preference.
	MinPriority string `yaml:"min_priority" json:"min_priority" jsonschema:"title=Min Priority,description=Initial minimum priority preference,enum=low,enum=medium,enum=high" validate:"omitempty,oneof=low medium high"`

	// NoticeTTL is how long transient notifications stay on screen.
	NoticeTTL Duration `yaml:"notice_ttl" json:"notice_ttl" jsonschema:"title=Notice TTL,description=How long notifications stay visible"`
}

// LogConfig tunes logging. The terminal UI owns stdout, so interactive
// commands log to a rotating file.
type LogConfig struct {
	// File is the log file path.
	File string `yaml:"file" json:"file" jsonschema:"title=Log File,description=Rotating log file path"`
}

// EmptyConfig returns a zero-valued configuration, used for schema
// generation.
func EmptyConfig() ClientConfig {
	return ClientConfig{} //nolint:exhaustruct
}

// DefaultConfig returns a configuration with every field set to its
// default value.
func DefaultConfig() ClientConfig {
	config := EmptyConfig()
	config.applyDefaults()

	return config
}

// TestConfig returns a configuration pointed at the given server with
// delays short enough for tests.
func TestConfig(serverURL string) ClientConfig {
	config := DefaultConfig()
	config.Server.URL = serverURL
	config.Stream.ReconnectBaseDelay = Duration{Duration: 20 * time.Millisecond}
	config.Stream.ReconnectMaxDelay = Duration{Duration: 100 * time.Millisecond}
	config.Stream.PingInterval = Duration{Duration: 50 * time.Millisecond}

	return config
}

// Load reads a configuration file, expands ${VAR} environment references,
// applies defaults, and validates the result.
func Load(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to read config file", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config ClientConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config file", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// StreamURL derives the websocket endpoint from the server URL. The http
// scheme maps to ws and https to wss; ws and wss pass through unchanged.
func (c *ClientConfig) StreamURL() (string, error) {
	parsed, err := url.Parse(c.Server.URL)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidEndpoint, "failed to parse server url", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Newf(errors.ErrCodeInvalidEndpoint, "unsupported server url scheme: %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + StreamPath

	return parsed.String(), nil
}

// GenerateSchema generates the JSON schema for the client configuration.
func (c *ClientConfig) GenerateSchema() (*jsonschema.Schema, error) {
	schema := jsonschema.Reflect(c)
	schema.Title = "marketdeck-client-config"
	schema.Description = "Configuration schema for the marketdeck streaming client"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates the JSON schema as an indented JSON string.
func (c *ClientConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaJSON), nil
}
