package peersock

import (
	"time"
)

// ErrorAction defines what Receive does after a read error.
type ErrorAction int

const (
	// Disconnect returns the error from Receive.
	Disconnect ErrorAction = iota
	// Continue logs the error and keeps receiving.
	Continue
)

// options holds the configuration for a Socket.
type options struct {
	config Config
	logger Logger

	// onError is called when a datagram read fails.
	onError func(error) ErrorAction
}

// Option configures a Socket.
type Option func(*options)

// ConfigOption replaces the whole configuration, for example one read
// with LoadConfig.
func ConfigOption(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// HeartbeatOption sets how long a peer may go without a send before a
// heartbeat is sent to it.
func HeartbeatOption(interval time.Duration) Option {
	return func(o *options) {
		o.config.HeartbeatInterval = interval
	}
}

// TimeoutOption sets how long a peer may stay silent before it is
// dropped. It must be longer than the heartbeat interval.
func TimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.config.DisconnectionTimeout = timeout
	}
}

// MessageMaxSize sets the largest payload Receive accepts, excluding the
// header byte. Datagrams carrying more are dropped.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.config.MaxMessageSize = size
	}
}

// OnErrorOption sets the callback invoked when reading a datagram fails.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption sets the logger. If not set, slog.Default is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions validates the configuration and fills defaults.
func checkOptions(opts *options) error {
	if err := opts.config.Validate(); err != nil {
		return err
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

type senderOptions struct {
	logger Logger
}

// SenderOption configures a MessageSender.
type SenderOption func(*senderOptions)

// SenderLoggerOption sets the logger used to report failed sends.
func SenderLoggerOption(logger Logger) SenderOption {
	return func(o *senderOptions) {
		o.logger = logger
	}
}
