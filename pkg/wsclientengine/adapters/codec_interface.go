package adapters

import "net/url"

// A single websocket frame as exchanged with the codec.
type Frame struct {
	// Frame type
	Type FrameType
	// Frame payload. Can be nil.
	Payload []byte
	// Close status code. Only used with Close frames.
	CloseCode StatusCode
	// Close reason. Only used with Close frames.
	CloseReason string
}

// Interface which describes the websocket frame codec the connection state machine delegates
// byte level encoding and decoding to.
//
// Implementations must be safe for concurrent use: Encode can be called concurrently with the
// usage of a decoder.
type FrameCodecInterface interface {
	// # Description
	//
	// Build the client side of the opening handshake for the provided target URL.
	//
	// # Returns
	//
	// The handshake or an error if the request cannot be built.
	NewHandshake(target *url.URL) (HandshakeInterface, error)
	// # Description
	//
	// Encode a client frame (masked, as required for client to server frames) for the protocol
	// version negotiated by the handshake.
	//
	// # Returns
	//
	// The raw bytes to write to the transport or an error if any.
	Encode(frame Frame, version int) ([]byte, error)
	// # Description
	//
	// Return a new incremental decoder for server to client frames.
	NewDecoder() FrameDecoderInterface
}

// Interface which describes the client side of the opening handshake.
type HandshakeInterface interface {
	// Raw HTTP upgrade request to write to the transport.
	Request() []byte
	// Websocket protocol version requested by the handshake.
	Version() int
	// # Description
	//
	// Validate the raw server response: status line and headers up to and including the blank
	// line terminator.
	//
	// # Returns
	//
	// Nil if the server accepted the upgrade, an error otherwise.
	Complete(response []byte) error
}

// Interface which describes an incremental frame decoder.
//
// A decoder is used by a single goroutine.
type FrameDecoderInterface interface {
	// Append raw bytes read from the transport. Bytes can be provided one at a time or by chunks.
	Write(p []byte) (int, error)
	// # Description
	//
	// Return the next fully decoded frame if any.
	//
	// # Returns
	//
	//	- Frame: the decoded frame
	//	- bool: true if a frame has been decoded, false if more bytes are needed
	//	- error: protocol violation. The decoder must not be used anymore once an error is returned.
	Next() (Frame, bool, error)
}
