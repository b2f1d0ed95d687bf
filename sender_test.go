package peersock

import (
	"net"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// stubPacketConn records WriteTo calls and fails them while err is set.
type stubPacketConn struct {
	net.PacketConn

	err    error
	writes [][]byte
	addrs  []net.Addr
}

func (c *stubPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.addrs = append(c.addrs, addr)
	return len(p), nil
}

// stubDataChannel records Send calls and fails them while err is set.
type stubDataChannel struct {
	err   error
	sends [][]byte
}

func (c *stubDataChannel) Send(data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sends = append(c.sends, append([]byte(nil), data...))
	return nil
}

func (c *stubDataChannel) Label() string { return "game" }

// recordingLogger keeps the last message logged at each level.
type recordingLogger struct {
	debugCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.debugCalled = true
	l.record(msg, args)
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record(msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record(msg, args) }

func (l *recordingLogger) record(msg string, args []any) {
	l.lastMsg = msg
	l.lastArgs = args
}

var errBoom = errors.New("boom")

func sentCount(r Ref[ConnectionManager]) uint64 {
	var n uint64
	r.Borrow(func(g *Guard[ConnectionManager]) {
		cm := g.Get()
		n = cm.Sent()
	})
	return n
}

var testPeerAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}

func newTestUDPSender(t *testing.T) (*MessageSender, *stubPacketConn, Ref[ConnectionManager]) {
	t.Helper()

	conn := new(stubPacketConn)
	socket := NewRef[net.PacketConn](conn)
	manager := NewRef(NewConnectionManager(DefaultConfig()))
	sender := NewUDPSender(testPeerAddr, socket, manager, SenderLoggerOption(slogt.New(t)))
	return sender, conn, manager
}

func TestMessageSender_UDPFraming(t *testing.T) {
	sender, conn, manager := newTestUDPSender(t)

	require.NoError(t, sender.SendString("ping"))

	require.Equal(t, [][]byte{{0x01, 'p', 'i', 'n', 'g'}}, conn.writes)
	require.Equal(t, []net.Addr{testPeerAddr}, conn.addrs)
	require.Equal(t, uint64(1), sentCount(manager))
}

func TestMessageSender_ArbitraryPayloads(t *testing.T) {
	sender, conn, manager := newTestUDPSender(t)

	payloads := [][]byte{nil, {0x00}, {0x01, 0x02}, []byte("héllo")}
	for _, p := range payloads {
		require.NoError(t, sender.Send(p))
	}

	require.Len(t, conn.writes, len(payloads))
	for i, p := range payloads {
		require.Equal(t, append([]byte{byte(HeaderData)}, p...), conn.writes[i])
	}
	require.Equal(t, uint64(len(payloads)), sentCount(manager))
}

func TestMessageSender_UDPFailure(t *testing.T) {
	sender, conn, manager := newTestUDPSender(t)
	diag := errors.New("network unreachable")
	conn.err = diag

	err := sender.SendString("ping")
	require.Error(t, err)
	require.ErrorIs(t, err, diag)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	require.Equal(t, testPeerAddr.String(), sendErr.Dest)
	require.Same(t, diag, sendErr.Err)

	require.Empty(t, conn.writes)
	require.Zero(t, sentCount(manager))

	// The sender recovers once the transport does.
	conn.err = nil
	require.NoError(t, sender.SendString("ping"))
	require.Equal(t, uint64(1), sentCount(manager))
}

func TestMessageSender_DataChannel(t *testing.T) {
	channel := new(stubDataChannel)
	manager := NewRef(NewConnectionManager(DefaultConfig()))
	sender := NewDataChannelSender(channel, manager, SenderLoggerOption(slogt.New(t)))

	require.NoError(t, sender.Send([]byte("ping")))
	require.Equal(t, [][]byte{{0x01, 'p', 'i', 'n', 'g'}}, channel.sends)
	require.Equal(t, uint64(1), sentCount(manager))
	require.Equal(t, "datachannel:game", sender.Dest())

	diag := errors.New("data channel closed")
	channel.err = diag
	err := sender.Send([]byte("pong"))
	require.ErrorIs(t, err, diag)
	require.EqualError(t, err, "send to datachannel:game: data channel closed")
	require.Equal(t, uint64(1), sentCount(manager))
}

func TestMessageSender_FailureIsLogged(t *testing.T) {
	conn := &stubPacketConn{err: errBoom}
	logger := &recordingLogger{}
	sender := NewUDPSender(testPeerAddr, NewRef[net.PacketConn](conn),
		NewRef(NewConnectionManager(DefaultConfig())), SenderLoggerOption(logger))

	require.Error(t, sender.SendString("x"))
	require.True(t, logger.debugCalled)
	require.Equal(t, "send failed", logger.lastMsg)
}

func TestMessageSender_CloneSharesState(t *testing.T) {
	sender, conn, manager := newTestUDPSender(t)
	require.Equal(t, 2, manager.Count())

	clone := sender.Clone()
	require.Equal(t, 3, manager.Count())

	require.NoError(t, sender.SendString("a"))
	require.NoError(t, clone.SendString("b"))
	require.Len(t, conn.writes, 2)
	require.Equal(t, uint64(2), sentCount(manager))

	clone.Close()
	sender.Close()
	require.Equal(t, 1, manager.Count())
}

func TestMessageSender_CloseLeavesTransportOpen(t *testing.T) {
	conn := new(stubPacketConn)
	socket := NewRef[net.PacketConn](conn)
	manager := NewRef(NewConnectionManager(DefaultConfig()))

	sender := NewUDPSender(testPeerAddr, socket, manager)
	require.Equal(t, 2, socket.Count())

	sender.Close()
	require.Equal(t, 1, socket.Count())

	// The caller's holder still reaches the connection.
	socket.Borrow(func(g *Guard[net.PacketConn]) {
		require.Same(t, conn, g.Get())
	})
}

func TestMessageSender_SendAfterClose(t *testing.T) {
	sender, conn, manager := newTestUDPSender(t)

	sender.Close()
	// Closing twice releases the holders only once.
	sender.Close()
	require.Equal(t, 1, manager.Count())

	err := sender.SendString("late")
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	require.ErrorIs(t, err, ErrSenderClosed)
	require.Equal(t, testPeerAddr.String(), sendErr.Dest)

	require.Empty(t, conn.writes)
	require.Zero(t, sentCount(manager))
}

func TestMessageSender_DataChannelSendAfterClose(t *testing.T) {
	channel := new(stubDataChannel)
	sender := NewDataChannelSender(channel, NewRef(NewConnectionManager(DefaultConfig())))

	sender.Close()
	require.ErrorIs(t, sender.Send([]byte("late")), ErrSenderClosed)
	require.Empty(t, channel.sends)
}
