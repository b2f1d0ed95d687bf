package peersock

import "time"

// ConnectionManager tracks liveness for a single peer: when we last sent
// to it and when we last heard from it.
//
// It holds no lock of its own. Share it through a Ref.
type ConnectionManager struct {
	heartbeatInterval    time.Duration
	disconnectionTimeout time.Duration

	lastSent  time.Time
	lastHeard time.Time
	sent      uint64
	heard     uint64

	now func() time.Time
}

// NewConnectionManager returns a manager whose clocks start now.
// cfg is expected to be validated.
func NewConnectionManager(cfg Config) ConnectionManager {
	return newConnectionManager(cfg, time.Now)
}

func newConnectionManager(cfg Config, now func() time.Time) ConnectionManager {
	t := now()
	return ConnectionManager{
		heartbeatInterval:    cfg.HeartbeatInterval,
		disconnectionTimeout: cfg.DisconnectionTimeout,
		lastSent:             t,
		lastHeard:            t,
		now:                  now,
	}
}

// MarkSent records that a message was just sent to the peer.
func (m *ConnectionManager) MarkSent() {
	m.lastSent = m.now()
	m.sent++
}

// MarkHeard records that a message was just received from the peer.
func (m *ConnectionManager) MarkHeard() {
	m.lastHeard = m.now()
	m.heard++
}

// ShouldSendHeartbeat reports whether nothing has been sent for a full
// heartbeat interval.
func (m *ConnectionManager) ShouldSendHeartbeat() bool {
	return m.now().Sub(m.lastSent) >= m.heartbeatInterval
}

// ShouldDrop reports whether the peer has been silent past the
// disconnection timeout.
func (m *ConnectionManager) ShouldDrop() bool {
	return m.now().Sub(m.lastHeard) >= m.disconnectionTimeout
}

// Sent returns the number of recorded sends.
func (m *ConnectionManager) Sent() uint64 { return m.sent }

// Heard returns the number of recorded receives.
func (m *ConnectionManager) Heard() uint64 { return m.heard }
