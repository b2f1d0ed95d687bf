package peersock

import "github.com/pion/webrtc/v4"

// DataChannel is the part of a WebRTC data channel a sender needs.
// *webrtc.DataChannel satisfies it on native and js/wasm builds.
type DataChannel interface {
	Send(data []byte) error
	Label() string
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// NewDataChannelSender returns a sender that writes each message as one
// binary message on channel. Backpressure is left to the channel.
func NewDataChannelSender(channel DataChannel, manager Ref[ConnectionManager], opt ...SenderOption) *MessageSender {
	return newMessageSender(channelTransport{channel: channel}, manager, opt)
}

type channelTransport struct {
	channel DataChannel
}

func (t channelTransport) send(frame []byte) error { return t.channel.Send(frame) }

func (t channelTransport) dest() string { return "datachannel:" + t.channel.Label() }

// The channel is owned by its peer connection, not by senders.
func (t channelTransport) clone() transport { return t }

func (t channelTransport) drop() {}
