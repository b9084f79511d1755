package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURL          = "http://localhost:8000"
	DefaultReconnectBaseDelay = 5 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMaxNarratives      = 8
	DefaultMinPriority        = "low"
	DefaultNoticeTTL          = 5 * time.Second
	DefaultLogFile            = "marketdeck.log"
)

func (c *ClientConfig) applyDefaults() {
	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay.Duration == 0 {
		c.Stream.ReconnectBaseDelay = Duration{Duration: DefaultReconnectBaseDelay}
	}
	if c.Stream.ReconnectMaxDelay.Duration == 0 {
		c.Stream.ReconnectMaxDelay = Duration{Duration: DefaultReconnectMaxDelay}
	}
	if c.Stream.PingInterval.Duration == 0 {
		c.Stream.PingInterval = Duration{Duration: DefaultPingInterval}
	}
	if c.Stream.HandshakeTimeout.Duration == 0 {
		c.Stream.HandshakeTimeout = Duration{Duration: DefaultHandshakeTimeout}
	}
	if c.Stream.WriteTimeout.Duration == 0 {
		c.Stream.WriteTimeout = Duration{Duration: DefaultWriteTimeout}
	}

	// Dashboard defaults
	if len(c.Dashboard.AssetClasses) == 0 {
		c.Dashboard.AssetClasses = []string{"forex", "stocks", "crypto"}
	}
	if c.Dashboard.MaxNarratives == 0 {
		c.Dashboard.MaxNarratives = DefaultMaxNarratives
	}
	if c.Dashboard.MinPriority == "" {
		c.Dashboard.MinPriority = DefaultMinPriority
	}
	if c.Dashboard.NoticeTTL.Duration == 0 {
		c.Dashboard.NoticeTTL = Duration{Duration: DefaultNoticeTTL}
	}

	// Log defaults
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
}
