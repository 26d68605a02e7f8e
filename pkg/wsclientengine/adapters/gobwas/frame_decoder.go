package wsadaptergobwas

import (
	"bytes"
	"errors"
	"io"

	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters"
	"github.com/gobwas/ws"
)

// Incremental decoder for server to client frames.
//
// Raw bytes are buffered until a whole frame is available. Fragmented data messages are
// reassembled; control frames interleaved with fragments are returned as soon as decoded.
type frameDecoder struct {
	// Raw bytes not decoded yet
	buf bytes.Buffer
	// Opcode of the fragmented message being reassembled, OpContinuation if none.
	fragmentedOp ws.OpCode
	// Payload of the fragmented message being reassembled
	fragments []byte
	// Whether a fragmented message is being reassembled
	fragmented bool
	// Maximum size of a reassembled message
	maxMessageSize int64
	// Sticky protocol error
	err error
}

// Append raw bytes read from the transport.
func (d *frameDecoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	return d.buf.Write(p)
}

// Return the next fully decoded frame if any.
func (d *frameDecoder) Next() (adapters.Frame, bool, error) {
	if d.err != nil {
		return adapters.Frame{}, false, d.err
	}
	for {
		h, payload, ok, err := d.readFrame()
		if err != nil {
			d.err = err
			return adapters.Frame{}, false, err
		}
		if !ok {
			return adapters.Frame{}, false, nil
		}
		frame, complete, err := d.handleFrame(h, payload)
		if err != nil {
			d.err = err
			return adapters.Frame{}, false, err
		}
		if complete {
			return frame, true, nil
		}
	}
}

// Consume one raw frame from the buffer. ok is false when more bytes are needed.
func (d *frameDecoder) readFrame() (h ws.Header, payload []byte, ok bool, err error) {
	raw := d.buf.Bytes()
	r := bytes.NewReader(raw)
	h, err = ws.ReadHeader(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, nil, false, nil
		}
		return h, nil, false, err
	}
	state := ws.StateClientSide
	if d.fragmented {
		state |= ws.StateFragmented
	}
	if err := ws.CheckHeader(h, state); err != nil {
		return h, nil, false, err
	}
	if h.Length < 0 || h.Length > d.maxMessageSize {
		return h, nil, false, ErrMessageTooBig
	}
	headerSize := len(raw) - r.Len()
	if int64(r.Len()) < h.Length {
		return h, nil, false, nil
	}
	payload = make([]byte, h.Length)
	copy(payload, raw[headerSize:])
	d.buf.Next(headerSize + int(h.Length))
	return h, payload, true, nil
}

// Convert a raw frame to an adapters.Frame. complete is false when the frame is a non final
// fragment of a data message.
func (d *frameDecoder) handleFrame(h ws.Header, payload []byte) (adapters.Frame, bool, error) {
	switch h.OpCode {
	case ws.OpPing:
		return adapters.Frame{Type: adapters.Ping, Payload: payload}, true, nil
	case ws.OpPong:
		return adapters.Frame{Type: adapters.Pong, Payload: payload}, true, nil
	case ws.OpClose:
		frame := adapters.Frame{Type: adapters.Close, Payload: payload, CloseCode: adapters.NoStatusReceived}
		if len(payload) >= 2 {
			code, reason := ws.ParseCloseFrameData(payload)
			frame.CloseCode = adapters.StatusCode(code)
			frame.CloseReason = reason
		}
		return frame, true, nil
	case ws.OpText, ws.OpBinary:
		if h.Fin {
			return adapters.Frame{Type: dataFrameType(h.OpCode), Payload: payload}, true, nil
		}
		d.fragmented = true
		d.fragmentedOp = h.OpCode
		d.fragments = append(d.fragments[:0], payload...)
		return adapters.Frame{}, false, nil
	case ws.OpContinuation:
		if int64(len(d.fragments)+len(payload)) > d.maxMessageSize {
			return adapters.Frame{}, false, ErrMessageTooBig
		}
		d.fragments = append(d.fragments, payload...)
		if !h.Fin {
			return adapters.Frame{}, false, nil
		}
		frame := adapters.Frame{Type: dataFrameType(d.fragmentedOp), Payload: d.fragments}
		d.fragments = nil
		d.fragmented = false
		d.fragmentedOp = ws.OpContinuation
		return frame, true, nil
	default:
		return adapters.Frame{}, false, ws.ErrProtocolOpCodeReserved
	}
}

func dataFrameType(op ws.OpCode) adapters.FrameType {
	if op == ws.OpBinary {
		return adapters.Binary
	}
	return adapters.Text
}
