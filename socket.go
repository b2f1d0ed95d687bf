// Package peersock provides a peer-to-peer message socket that runs over
// UDP on native platforms or over WebRTC data channels.
//
// Application payloads are framed with a single header byte and sent
// through a MessageSender, which records each successful send in the
// peer's ConnectionManager. Shared state lives in a Ref, whose locking
// discipline is chosen at build time: the default build assumes a single
// goroutine and checks borrows at runtime, while -tags multithread guards
// every Ref with a mutex.
package peersock

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Errors returned by socket operations.
var (
	// ErrSocketClosed is returned by Receive and Sender once the socket is closed.
	ErrSocketClosed = errors.New("socket closed")
	// ErrMessageTooLarge is logged for datagrams whose payload exceeds
	// the configured maximum message size.
	ErrMessageTooLarge = errors.New("message too large")
)

// EventKind identifies what Receive observed.
type EventKind int

const (
	// EventConnection is reported the first time a peer is heard from.
	EventConnection EventKind = iota
	// EventDisconnection is reported when a connected peer times out.
	EventDisconnection
	// EventMessage carries a data payload from a peer.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnection:
		return "connection"
	case EventDisconnection:
		return "disconnection"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a single result of Receive.
type Event struct {
	Kind    EventKind
	Addr    net.Addr
	Payload []byte
}

type peer struct {
	addr      net.Addr
	manager   Ref[ConnectionManager]
	sender    *MessageSender
	connected bool
}

// peerTable is the socket's peer set. closed is set once the socket has
// released its peers; no peer may be added after that.
type peerTable struct {
	byAddr map[string]*peer
	closed bool
}

// Socket is a UDP endpoint that tracks the liveness of every peer it
// talks to. The owner drives it by calling Receive in a loop; heartbeats
// and timeouts are handled inside Receive, so no background goroutines
// are started.
type Socket struct {
	conn   net.PacketConn
	shared Ref[net.PacketConn]
	peers  Ref[peerTable]
	logger Logger
	opts   options

	buf      []byte
	pending  []Event
	released bool
	closed   atomic.Bool
}

// Listen opens a UDP socket on addr, for example "127.0.0.1:0".
func Listen(addr string, opt ...Option) (*Socket, error) {
	opts, err := newOptions(opt)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	return newSocketWithOptions(conn, opts), nil
}

// NewSocket wraps an existing packet connection. The socket takes
// ownership of conn and closes it on Close.
func NewSocket(conn net.PacketConn, opt ...Option) (*Socket, error) {
	opts, err := newOptions(opt)
	if err != nil {
		return nil, err
	}

	return newSocketWithOptions(conn, opts), nil
}

func newOptions(opt []Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return options{}, err
	}

	return opts, nil
}

func newSocketWithOptions(conn net.PacketConn, opts options) *Socket {
	return &Socket{
		conn:   conn,
		shared: NewRef(conn),
		peers:  NewRef(peerTable{byAddr: make(map[string]*peer)}),
		logger: opts.logger,
		opts:   opts,
		// One byte for the header and one to detect oversized datagrams.
		buf: make([]byte, opts.config.MaxMessageSize+2),
	}
}

// Sender returns a MessageSender for addr, registering the peer if it is
// not yet known. The caller owns the returned sender and should Close it
// when done. A peer that is never heard from is forgotten after the
// disconnection timeout; the returned sender keeps working regardless.
func (s *Socket) Sender(addr net.Addr) (*MessageSender, error) {
	if s.closed.Load() {
		return nil, ErrSocketClosed
	}

	var (
		sender *MessageSender
		err    error
	)
	s.peers.BorrowMut(func(g *GuardMut[peerTable]) {
		table := g.Ptr()
		if table.closed {
			err = ErrSocketClosed
			return
		}
		// Clone under the lock so tick cannot close the peer's sender first.
		sender = s.lookup(table, addr).sender.Clone()
	})
	return sender, err
}

// Receive blocks until the next event. Receive must not be called from
// more than one goroutine at a time.
func (s *Socket) Receive() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}

		if s.closed.Load() {
			s.release()
			return Event{}, ErrSocketClosed
		}

		s.tick()
		if len(s.pending) > 0 {
			continue
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.config.HeartbeatInterval))

		n, addr, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if s.closed.Load() {
				continue
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			s.logger.Debug("read error", "addr", s.Addr(), "error", err)
			if s.opts.onError(err) == Disconnect {
				return Event{}, err
			}
			continue
		}

		s.handle(addr, s.buf[:n])
	}
}

// Close closes the underlying connection. Safe to call multiple times and
// from any goroutine; a blocked Receive returns ErrSocketClosed.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// Addr returns the local address.
func (s *Socket) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// handle processes one datagram, queueing any resulting events.
func (s *Socket) handle(addr net.Addr, frame []byte) {
	if len(frame) > s.opts.config.MaxMessageSize+1 {
		s.logger.Debug("dropping frame", "addr", addr, "error", ErrMessageTooLarge,
			"max_message_size", s.opts.config.MaxMessageSize)
		return
	}

	h, payload, err := ParseFrame(frame)
	if err != nil {
		s.logger.Debug("dropping frame", "addr", addr, "error", err)
		return
	}

	var p *peer
	s.peers.BorrowMut(func(g *GuardMut[peerTable]) {
		p = s.lookup(g.Ptr(), addr)
	})
	p.manager.BorrowMut(func(g *GuardMut[ConnectionManager]) {
		g.Ptr().MarkHeard()
	})

	if !p.connected {
		p.connected = true
		s.logger.Info("peer connected", "addr", addr)
		s.pending = append(s.pending, Event{Kind: EventConnection, Addr: addr})
	}

	if h == HeaderData {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		s.pending = append(s.pending, Event{Kind: EventMessage, Addr: addr, Payload: msg})
	}
}

// tick drops silent peers and sends heartbeats to idle ones.
func (s *Socket) tick() {
	var (
		dropped []*peer
		idle    []*MessageSender
	)

	s.peers.BorrowMut(func(g *GuardMut[peerTable]) {
		table := g.Ptr()
		for key, p := range table.byAddr {
			var drop, beat bool
			p.manager.Borrow(func(mg *Guard[ConnectionManager]) {
				cm := mg.Get()
				drop = cm.ShouldDrop()
				beat = cm.ShouldSendHeartbeat()
			})

			if drop {
				delete(table.byAddr, key)
				dropped = append(dropped, p)
				continue
			}
			if beat {
				idle = append(idle, p.sender)
			}
		}
	})

	for _, p := range dropped {
		if p.connected {
			s.logger.Info("peer disconnected", "addr", p.addr)
			s.pending = append(s.pending, Event{Kind: EventDisconnection, Addr: p.addr})
		}
		p.sender.Close()
		p.manager.Drop()
	}

	for _, sender := range idle {
		if err := sender.send(HeaderHeartbeat, nil); err != nil {
			s.logger.Debug("heartbeat failed", "dest", sender.Dest(), "error", err)
		}
	}
}

// lookup returns the entry for addr, creating it if needed.
// It must be called with the peers guard held.
func (s *Socket) lookup(table *peerTable, addr net.Addr) *peer {
	key := addr.String()
	if p, ok := table.byAddr[key]; ok {
		return p
	}

	manager := NewRef(NewConnectionManager(s.opts.config))
	p := &peer{
		addr:    addr,
		manager: manager,
		sender:  NewUDPSender(addr, s.shared, manager, SenderLoggerOption(s.logger)),
	}
	table.byAddr[key] = p
	return p
}

// release drops the socket's holds on its peers and connection.
// Senders handed out by Sender keep their own holds.
func (s *Socket) release() {
	if s.released {
		return
	}
	s.released = true

	s.peers.BorrowMut(func(g *GuardMut[peerTable]) {
		table := g.Ptr()
		for key, p := range table.byAddr {
			p.sender.Close()
			p.manager.Drop()
			delete(table.byAddr, key)
		}
		table.closed = true
	})
	s.shared.Drop()
}
