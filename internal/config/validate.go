package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/lunarcap/marketdeck/pkg/errors"
)

// Validate checks that required fields are present and values are sane.
// It expects defaults to have been applied already.
func (c *ClientConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client config", err)
	}

	if c.Stream.ReconnectBaseDelay.Duration <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "stream.reconnect_base_delay must be positive")
	}
	if c.Stream.ReconnectMaxDelay.Duration < c.Stream.ReconnectBaseDelay.Duration {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"stream.reconnect_max_delay (%s) cannot be less than stream.reconnect_base_delay (%s)",
			c.Stream.ReconnectMaxDelay, c.Stream.ReconnectBaseDelay)
	}
	if c.Stream.PingInterval.Duration <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "stream.ping_interval must be positive")
	}
	if c.Stream.HandshakeTimeout.Duration <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "stream.handshake_timeout must be positive")
	}
	if c.Stream.WriteTimeout.Duration <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "stream.write_timeout must be positive")
	}

	if c.Dashboard.MaxNarratives < 1 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "dashboard.max_narratives must be >= 1")
	}
	if c.Dashboard.NoticeTTL.Duration <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "dashboard.notice_ttl must be positive")
	}

	// The stream endpoint must be derivable from the server URL.
	if _, err := c.StreamURL(); err != nil {
		return err
	}

	return nil
}
