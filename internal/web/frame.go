package web

import "github.com/gorilla/websocket"

// FrameKind tells whether an inbound frame carried text or binary data.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
)

// Frame is one inbound websocket message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// frameFromMessage maps a gorilla message type to a Frame. Control frames are
// reported as not ok.
func frameFromMessage(messageType int, data []byte) (Frame, bool) {
	switch messageType {
	case websocket.TextMessage:
		return Frame{Kind: FrameText, Data: data}, true
	case websocket.BinaryMessage:
		return Frame{Kind: FrameBinary, Data: data}, true
	default:
		return Frame{}, false
	}
}

// Payload returns the bytes that are fanned out. Text frames are already
// UTF-8 on the wire, so both kinds share one representation.
func (f Frame) Payload() []byte {
	return f.Data
}
