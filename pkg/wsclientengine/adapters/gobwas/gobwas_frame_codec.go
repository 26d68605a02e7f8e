// Package which contains a FrameCodecInterface implementation for gobwas/ws library
// (https://github.com/gobwas/ws).
package wsadaptergobwas

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters"
	"github.com/gobwas/ws"
)

// Websocket protocol version implemented by the codec.
const ProtocolVersion = 13

// Default maximum size of a reassembled message.
const DefaultMaxMessageSize int64 = 32 * 1024 * 1024

// Error returned when a frame is encoded for a protocol version the codec does not implement.
var ErrUnsupportedVersion = errors.New("unsupported websocket protocol version")

// Error returned by the decoder when a frame or a reassembled message exceeds the limit.
var ErrMessageTooBig = errors.New("websocket message exceeds the maximum size")

// Frame codec for gobwas/ws library
type GobwasFrameCodec struct {
	// Maximum size of a reassembled message
	maxMessageSize int64
}

// # Description
//
// Factory which creates a new gobwas/ws frame codec. DefaultMaxMessageSize is used when
// maxMessageSize is not a positive value.
func NewGobwasFrameCodec(maxMessageSize int64) *GobwasFrameCodec {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &GobwasFrameCodec{maxMessageSize: maxMessageSize}
}

// # Description
//
// Build the client side of the opening handshake for the provided target URL.
func (codec *GobwasFrameCodec) NewHandshake(target *url.URL) (adapters.HandshakeInterface, error) {
	return newClientHandshake(target)
}

// # Description
//
// Encode a masked client frame. Close frames carry the status code and reason when a code is
// set, an empty body otherwise.
//
// # Returns
//
// The raw frame or an error if the version is not supported, the frame type is unknown or a
// control frame payload is larger than 125 bytes.
func (codec *GobwasFrameCodec) Encode(frame adapters.Frame, version int) ([]byte, error) {
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	var op ws.OpCode
	payload := frame.Payload
	switch frame.Type {
	case adapters.Text:
		op = ws.OpText
	case adapters.Binary:
		op = ws.OpBinary
	case adapters.Ping:
		op = ws.OpPing
	case adapters.Pong:
		op = ws.OpPong
	case adapters.Close:
		op = ws.OpClose
		if frame.CloseCode != 0 {
			payload = ws.NewCloseFrameBody(ws.StatusCode(frame.CloseCode), frame.CloseReason)
		}
	default:
		return nil, fmt.Errorf("cannot encode frame of type %s", frame.Type)
	}
	if op.IsControl() && len(payload) > ws.MaxControlFramePayloadSize {
		return nil, ws.ErrProtocolControlPayloadOverflow
	}
	// MaskFrame copies the payload: caller's buffer is left untouched
	return ws.CompileFrame(ws.MaskFrame(ws.NewFrame(op, true, payload)))
}

// # Description
//
// Return a new incremental decoder for server to client frames.
func (codec *GobwasFrameCodec) NewDecoder() adapters.FrameDecoderInterface {
	return &frameDecoder{maxMessageSize: codec.maxMessageSize}
}
