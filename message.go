package peersock

import "github.com/pkg/errors"

// Header is the one-byte message kind that prefixes every datagram.
type Header byte

// Message kinds shared with the receiving side.
const (
	// HeaderData marks an application payload.
	HeaderData Header = 0x01
	// HeaderHeartbeat marks a keepalive with no payload.
	HeaderHeartbeat Header = 0x02
)

// Errors returned by ParseFrame.
var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrUnknownHeader = errors.New("unknown message header")
)

func (h Header) String() string {
	switch h {
	case HeaderData:
		return "data"
	case HeaderHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Frame returns h followed by payload. No length prefix or checksum is
// added; the datagram boundary delimits the message.
func Frame(h Header, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(h)
	copy(out[1:], payload)
	return out
}

// ParseFrame splits a received frame into its header and payload.
// The payload aliases frame.
func ParseFrame(frame []byte) (Header, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}

	h := Header(frame[0])
	switch h {
	case HeaderData, HeaderHeartbeat:
		return h, frame[1:], nil
	default:
		return h, nil, errors.Wrapf(ErrUnknownHeader, "header 0x%02x", frame[0])
	}
}
