package mqtt

import (
	"errors"
	"net/url"
	"time"

	"github.com/autopeer-io/agvfleet/pkg/log"
)

var (
	ErrNotStarted    = errors.New("mqtt client not started")
	ErrInvalidConfig = errors.New("invalid mqtt config")
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// SessionExpiry in seconds. Zero ends the session with the connection.
	SessionExpiry uint32

	// ConnectTimeout bounds each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectDelay is the pause between connection attempts. Default is 3s.
	ReconnectDelay time.Duration

	CleanStart bool

	// InsecureSkipVerify disables certificate checks on mqtts/ssl/tls/wss brokers.
	InsecureSkipVerify bool

	// Will is published by the broker when the client disappears without
	// disconnecting. It is skipped when WillTopic is empty.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	// Logger defaults to the global logger named "mqtt".
	Logger log.Logger
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("broker url needs a scheme and a host")
	}
	if c.WillQoS > 2 {
		return errors.New("will qos must be 0, 1 or 2")
	}
	if c.ReconnectDelay < 0 || c.ConnectTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// secureScheme reports whether a broker scheme asks for TLS.
func secureScheme(scheme string) bool {
	switch scheme {
	case "mqtts", "ssl", "tls", "wss":
		return true
	default:
		return false
	}
}
