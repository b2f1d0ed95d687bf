package peersock

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// defaultHeartbeatInterval is how long a peer may go without a send
	// before a heartbeat is emitted.
	defaultHeartbeatInterval = time.Second
	// defaultDisconnectionTimeout is how long a peer may stay silent
	// before it is dropped.
	defaultDisconnectionTimeout = 10 * time.Second
	// defaultMaxMessageSize is the largest UDP payload over IPv4.
	defaultMaxMessageSize = 65507
)

// ErrInvalidTimeout is returned when the disconnection timeout does not
// exceed the heartbeat interval.
var ErrInvalidTimeout = errors.New("disconnection timeout must exceed heartbeat interval")

// Config holds the liveness and buffer settings shared by a socket and
// its connection managers.
//
// MaxMessageSize bounds the payload of a received data frame, not
// counting the header byte.
type Config struct {
	HeartbeatInterval    time.Duration `toml:"heartbeat_interval"`
	DisconnectionTimeout time.Duration `toml:"disconnection_timeout"`
	MaxMessageSize       int           `toml:"max_message_size"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    defaultHeartbeatInterval,
		DisconnectionTimeout: defaultDisconnectionTimeout,
		MaxMessageSize:       defaultMaxMessageSize,
	}
}

// LoadConfig reads a TOML file. Durations are written as strings such as
// "500ms". Missing keys take their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fills zero fields with defaults and checks that the timeout
// is longer than the heartbeat interval.
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}

	if c.DisconnectionTimeout <= 0 {
		c.DisconnectionTimeout = defaultDisconnectionTimeout
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.DisconnectionTimeout <= c.HeartbeatInterval {
		return errors.Wrapf(ErrInvalidTimeout, "timeout %v, heartbeat %v",
			c.DisconnectionTimeout, c.HeartbeatInterval)
	}

	return nil
}
