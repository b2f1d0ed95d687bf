package peersock

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrSenderClosed is the cause of a SendError returned by a sender that
// has been closed.
var ErrSenderClosed = errors.New("sender closed")

// SendError is the only error returned by MessageSender.Send. Err is the
// transport's error, unmodified, or ErrSenderClosed.
type SendError struct {
	Dest string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Dest, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// transport is the one-call-per-frame boundary a MessageSender drives.
type transport interface {
	send(frame []byte) error
	dest() string
	clone() transport
	drop()
}

// MessageSender frames application payloads and sends them to one peer.
// Successful sends are recorded in the peer's ConnectionManager; failed
// sends are not, so a failing link never looks alive.
//
// Senders carry no state of their own. Clone shares the transport and
// the connection manager.
type MessageSender struct {
	transport transport
	manager   Ref[ConnectionManager]
	logger    Logger
	closed    atomic.Bool
}

// NewUDPSender returns a sender that writes one datagram per message to
// addr through socket. The sender becomes a holder of both socket and
// manager; the caller keeps its own holders.
func NewUDPSender(addr net.Addr, socket Ref[net.PacketConn], manager Ref[ConnectionManager], opt ...SenderOption) *MessageSender {
	return newMessageSender(udpTransport{addr: addr, socket: socket.Clone()}, manager, opt)
}

func newMessageSender(t transport, manager Ref[ConnectionManager], opt []SenderOption) *MessageSender {
	var opts senderOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return &MessageSender{
		transport: t,
		manager:   manager.Clone(),
		logger:    opts.logger,
	}
}

// Send transmits message as a data frame: the HeaderData byte followed by
// the message bytes. There is no retry, queueing or backpressure; a
// transport failure is returned as a *SendError.
func (s *MessageSender) Send(message []byte) error {
	return s.send(HeaderData, message)
}

// SendString is Send for text payloads.
func (s *MessageSender) SendString(message string) error {
	return s.send(HeaderData, []byte(message))
}

func (s *MessageSender) send(h Header, payload []byte) error {
	if s.closed.Load() {
		return &SendError{Dest: s.transport.dest(), Err: ErrSenderClosed}
	}

	if err := s.transport.send(Frame(h, payload)); err != nil {
		s.logger.Debug("send failed", "dest", s.transport.dest(), "header", h, "error", err)
		return &SendError{Dest: s.transport.dest(), Err: err}
	}

	s.manager.BorrowMut(func(g *GuardMut[ConnectionManager]) {
		g.Ptr().MarkSent()
	})

	return nil
}

// Dest returns a printable form of the destination.
func (s *MessageSender) Dest() string {
	return s.transport.dest()
}

// Clone returns a sender sharing the transport and connection manager.
// Cloning a closed sender panics with a *BorrowError.
func (s *MessageSender) Clone() *MessageSender {
	return &MessageSender{
		transport: s.transport.clone(),
		manager:   s.manager.Clone(),
		logger:    s.logger,
	}
}

// Close releases this sender's holds on the socket and connection
// manager. The transport itself is not closed. Later sends fail with
// ErrSenderClosed. Close is idempotent.
func (s *MessageSender) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.transport.drop()
	s.manager.Drop()
}

type udpTransport struct {
	addr   net.Addr
	socket Ref[net.PacketConn]
}

func (t udpTransport) send(frame []byte) error {
	var err error
	t.socket.Borrow(func(g *Guard[net.PacketConn]) {
		_, err = g.Get().WriteTo(frame, t.addr)
	})
	return err
}

func (t udpTransport) dest() string { return t.addr.String() }

func (t udpTransport) clone() transport {
	return udpTransport{addr: t.addr, socket: t.socket.Clone()}
}

func (t udpTransport) drop() { t.socket.Drop() }
