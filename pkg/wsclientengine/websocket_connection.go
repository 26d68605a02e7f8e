// Package wsclientengine manages a client websocket connection: it opens the transport, drives
// the opening handshake, runs the background reader and delivers received messages to one or
// many consumers.
package wsclientengine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gbdevw/gowaithook/pkg/logging"
	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters"
	wsadaptergobwas "github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters/gobwas"
	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters/netdial"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Connection lifecycle states
type ConnectionState int32

const (
	// Connection has been created but Connect has not been called yet
	Idle ConnectionState = iota
	// Transport is being opened
	Connecting
	// Transport is opened and the background reader is running
	Open
	// Connection has been closed by the user, by the server or could not be opened
	Closed
	// Background reader stopped because of an error, see Err()
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// A client websocket connection.
//
// A connection is not reusable: once closed or failed, a new connection must be created.
type WebsocketConnection struct {
	// Connection ID used in logs and spans
	id uuid.UUID
	// Configuration options
	opts *WebsocketConnectionConfigurationOptions
	// URL targeted by the opening handshake
	target *url.URL
	// Transport used to open the byte stream
	dialer adapters.DialerInterface
	// Codec used to encode and decode frames
	codec adapters.FrameCodecInterface
	// Logger
	logger *zap.Logger
	// Tracer used to instrument the connection
	tracer trace.Tracer
	// Counter of frames received from the server
	framesReceived metric.Int64Counter
	// Counter of frames written to the server
	framesSent metric.Int64Counter
	// Counter of text messages delivered to the queue
	messagesDelivered metric.Int64Counter

	// Guards state, conn, handshake, err and closing
	mu sync.Mutex
	// Lifecycle state
	state ConnectionState
	// Byte stream, owned by the connection once opened
	conn net.Conn
	// Handshake built by the codec
	handshake adapters.HandshakeInterface
	// Terminal error
	err error
	// Set when Close has been called
	closing bool

	// Serializes writes to the transport
	writeMu sync.Mutex
	// Set once the handshake response has been accepted
	handshakeReceived atomic.Bool
	// Waiters for the handshake
	connected *waiterRegistry[struct{}]
	// Waiters for the next message
	newMessage *waiterRegistry[Message]
	// Received messages
	queue *MessageQueue
	// Closed when the connection leaves the Open state
	done     chan struct{}
	doneOnce sync.Once
	// Closed when the background reader exits
	readerDone chan struct{}
}

// # Description
//
// Factory - Return a new, idle websocket connection.
//
// # Inputs
//
//   - opts: Connection options. If nil, default options are used.
//   - dialer: Transport used to open the byte stream. If nil, an instrumented netdial dialer is used.
//   - codec: Frame codec. If nil, the gobwas/ws codec is used.
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: OpenTelemetry tracer provider to use. If nil, global TracerProvider is used.
//   - meterProvider: OpenTelemetry meter provider to use. If nil, global MeterProvider is used.
//
// # Return
//
// A new idle connection or an error if options are invalid.
func NewWebsocketConnection(
	opts *WebsocketConnectionConfigurationOptions,
	dialer adapters.DialerInterface,
	codec adapters.FrameCodecInterface,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*WebsocketConnection, error) {

	if opts == nil {
		opts = NewWebsocketConnectionConfigurationOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	if dialer == nil {
		dialer = adapters.NewDialerInstrumentationDecorator(
			netdial.NewNetDialer(time.Duration(opts.DialTimeoutMs)*time.Millisecond, 0),
			tracerProvider)
	}
	if codec == nil {
		codec = wsadaptergobwas.NewGobwasFrameCodec(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion))
	framesReceived, err := meter.Int64Counter(metricFramesReceived,
		metric.WithDescription("Number of websocket frames received from the server"))
	if err != nil {
		return nil, err
	}
	framesSent, err := meter.Int64Counter(metricFramesSent,
		metric.WithDescription("Number of websocket frames written to the server"))
	if err != nil {
		return nil, err
	}
	messagesDelivered, err := meter.Int64Counter(metricMessagesDelivered,
		metric.WithDescription("Number of text messages delivered to consumers"))
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &WebsocketConnection{
		id:                id,
		opts:              opts,
		target:            HandshakeURL(opts.Host, opts.Port, opts.Path, opts.UseTLS()),
		dialer:            dialer,
		codec:             codec,
		logger:            logger.With(zap.String("connection_id", id.String())),
		tracer:            tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		framesReceived:    framesReceived,
		framesSent:        framesSent,
		messagesDelivered: messagesDelivered,
		state:             Idle,
		connected:         newWaiterRegistry[struct{}](true),
		newMessage:        newWaiterRegistry[Message](false),
		queue:             NewMessageQueue(),
		done:              make(chan struct{}),
		readerDone:        make(chan struct{}),
	}, nil
}

/*************************************************************************************************/
/* PUBLIC API                                                                                    */
/*************************************************************************************************/

// # Description
//
// Open the transport, write the opening handshake request and start the background reader.
// Connect does not wait for the handshake response: use WaitHandshake for that purpose.
//
// # Return
//
//   - ErrAlreadyConnected if the connection is not idle.
//   - TransportOpenError if the transport cannot be opened or the request cannot be written.
//   - An error if the codec cannot build the handshake request.
func (c *WebsocketConnection) Connect(ctx context.Context) error {
	useTLS := c.opts.UseTLS()
	ctx, span := c.tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrConnectionId, c.id.String()),
			attribute.String(attrUrl, c.target.String()),
			attribute.Bool(attrTLS, useTLS),
		))
	defer span.End()

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return handleError(ErrAlreadyConnected, span, codes.Error, ErrAlreadyConnected.Error())
	}
	c.state = Connecting
	c.mu.Unlock()

	address := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	c.logger.Info("connecting", zap.String("url", c.target.String()), zap.Bool("tls", useTLS))
	dialCtx := ctx
	if c.opts.DialTimeoutMs > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, time.Duration(c.opts.DialTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	conn, err := c.dialer.Open(dialCtx, c.opts.Host, c.opts.Port, c.opts.TLSConfig())
	if err != nil {
		err = TransportOpenError{Address: address, Err: err}
		c.terminate(err)
		return handleError(err, span, codes.Error, "failed to open transport")
	}
	handshake, err := c.codec.NewHandshake(c.target)
	if err != nil {
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.terminate(err)
		return handleError(err, span, codes.Error, "failed to build handshake request")
	}

	c.mu.Lock()
	c.conn = conn
	c.handshake = handshake
	c.state = Open
	c.mu.Unlock()
	go c.read(trace.ContextWithSpanContext(context.Background(), span.SpanContext()), conn)

	logging.Trace(c.logger, "sending handshake request", zap.ByteString("request", handshake.Request()))
	if err := c.writeRaw(conn, handshake.Request()); err != nil {
		err = TransportOpenError{Address: address, Err: err}
		c.terminate(err)
		return handleError(err, span, codes.Error, "failed to write handshake request")
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Block until the handshake response has been received and accepted. Return immediately if it
// already has been.
//
// # Return
//
//   - nil once the handshake has been received.
//   - The terminal error (or ErrConnectionClosed) if the connection stops before the handshake.
//   - TimeoutError or the context error if ctx is done first.
func (c *WebsocketConnection) WaitHandshake(ctx context.Context) error {
	if c.handshakeReceived.Load() {
		return nil
	}
	w := c.connected.register()
	_, err := w.Wait(ctx)
	if err != nil {
		c.connected.unregister(w)
	}
	return err
}

// # Description
//
// Wait for the handshake, then encode and write a frame to the server. Writes are serialized.
//
// # Return
//
//   - nil once the frame has been written.
//   - ErrConnectionClosed if the connection is not open.
//   - An encoding or write error.
func (c *WebsocketConnection) Send(ctx context.Context, frameType adapters.FrameType, payload []byte) error {
	ctx, span := c.tracer.Start(ctx, spanSend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrConnectionId, c.id.String()),
			attribute.String(attrFrameType, frameType.String()),
			attribute.Int(attrFrameLength, len(payload)),
		))
	defer span.End()
	if err := c.WaitHandshake(ctx); err != nil {
		return handleError(err, span, codes.Error, "handshake not received")
	}
	if !c.Connected() {
		return handleError(ErrConnectionClosed, span, codes.Error, ErrConnectionClosed.Error())
	}
	return handlePotentialError(c.writeFrame(ctx, adapters.Frame{Type: frameType, Payload: payload}), span)
}

// Send a ping frame with an empty payload
func (c *WebsocketConnection) SendPing(ctx context.Context) error {
	return c.Send(ctx, adapters.Ping, nil)
}

// Send a pong frame with an empty payload
func (c *WebsocketConnection) SendPong(ctx context.Context) error {
	return c.Send(ctx, adapters.Pong, nil)
}

// Send a text frame
func (c *WebsocketConnection) SendMessage(ctx context.Context, text string) error {
	return c.Send(ctx, adapters.Text, []byte(text))
}

// # Description
//
// Close the connection. When sendCloseFrame is true and the handshake has been received, a
// 1000 close frame is sent first. The transport is then closed, which stops the background
// reader. Close waits for the reader to exit, up to CloseTimeoutMs.
//
// Pending and future WaitMessage calls return ErrConnectionClosed once buffered messages have
// been consumed.
//
// # Return
//
// True if the connection was open and has been closed, false otherwise.
func (c *WebsocketConnection) Close(ctx context.Context, sendCloseFrame bool) bool {
	ctx, span := c.tracer.Start(ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrConnectionId, c.id.String()),
			attribute.Bool(attrSendCloseFrame, sendCloseFrame),
		))
	defer span.End()

	c.mu.Lock()
	if c.state != Open || c.closing {
		c.mu.Unlock()
		span.SetStatus(codes.Ok, codes.Ok.String())
		return false
	}
	c.closing = true
	c.mu.Unlock()

	if sendCloseFrame && c.handshakeReceived.Load() {
		err := c.writeFrame(ctx, adapters.Frame{Type: adapters.Close, CloseCode: adapters.NormalClosure})
		if err != nil {
			span.RecordError(err)
			c.logger.Debug("failed to send close frame", zap.Error(err))
		}
	}
	c.terminate(nil)

	var timeout <-chan time.Time
	if c.opts.CloseTimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(c.opts.CloseTimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-c.readerDone:
	case <-timeout:
		c.logger.Warn("background reader did not exit in time")
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return true
}

// # Description
//
// Remove and return the oldest received message. Must not be called concurrently by several
// consumers: use WaitNewMessage for that purpose.
//
// # Return
//
//   - The oldest message.
//   - The terminal error (or ErrConnectionClosed) once the connection stopped and all buffered
//     messages have been consumed.
//   - TimeoutError or the context error if ctx is done first. No message is consumed then.
func (c *WebsocketConnection) WaitMessage(ctx context.Context) (Message, error) {
	return c.queue.Pop(ctx)
}

// # Description
//
// Block until the next text message is received. Every caller blocked when a message arrives
// receives that message, exactly once. Messages received before the call are not returned.
func (c *WebsocketConnection) WaitNewMessage(ctx context.Context) (Message, error) {
	w := c.newMessage.register()
	msg, err := w.Wait(ctx)
	if err != nil {
		c.newMessage.unregister(w)
	}
	return msg, err
}

// True if the connection is open and Close has not been called
func (c *WebsocketConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Open && !c.closing
}

// Current lifecycle state
func (c *WebsocketConnection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Terminal error if any
func (c *WebsocketConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Channel closed when the connection leaves the Open state
func (c *WebsocketConnection) Done() <-chan struct{} {
	return c.done
}

// Connection ID
func (c *WebsocketConnection) ID() uuid.UUID {
	return c.id
}

// URL targeted by the opening handshake
func (c *WebsocketConnection) Target() *url.URL {
	return c.target
}

/*************************************************************************************************/
/* BACKGROUND READER                                                                             */
/*************************************************************************************************/

// Sole reader of the transport. Reads the handshake response, then decodes and dispatches frames
// until the connection stops.
func (c *WebsocketConnection) read(ctx context.Context, conn net.Conn) {
	ctx, span := c.tracer.Start(ctx, spanReaderRun,
		trace.WithAttributes(attribute.String(attrConnectionId, c.id.String())))
	defer span.End()
	defer close(c.readerDone)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("background reader panic: %v", r)
			span.RecordError(err)
			c.terminate(err)
		}
		span.AddEvent(eventReaderExit)
	}()

	reader := bufio.NewReaderSize(conn, c.opts.ReadBufferSize)
	if err := c.readHandshake(ctx, reader); err != nil {
		c.terminate(err)
		return
	}
	decoder := c.codec.NewDecoder()
	buf := make([]byte, c.opts.ReadBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := decoder.Write(buf[:n]); werr != nil {
				c.terminate(FrameDecodeError{Err: werr})
				return
			}
			for {
				frame, ok, derr := decoder.Next()
				if derr != nil {
					span.RecordError(derr)
					c.terminate(FrameDecodeError{Err: derr})
					return
				}
				if !ok {
					break
				}
				if stop := c.dispatch(ctx, span, frame); stop {
					return
				}
			}
		}
		if err != nil {
			c.terminate(adapters.WebsocketCloseError{Code: adapters.AbnormalClosure, Err: err})
			return
		}
	}
}

// Read the handshake response up to the blank line and hand it to the codec.
func (c *WebsocketConnection) readHandshake(ctx context.Context, reader *bufio.Reader) error {
	_, span := c.tracer.Start(ctx, spanReaderHandshake)
	defer span.End()
	response := new(bytes.Buffer)
	for {
		line, err := reader.ReadString('\n')
		response.WriteString(line)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return handleError(HandshakeError{Err: err}, span, codes.Error, "failed to read handshake response")
		}
		if response.Len() > c.opts.MaxHandshakeSize {
			err := HandshakeError{Err: fmt.Errorf("handshake response exceeds %d bytes", c.opts.MaxHandshakeSize)}
			return handleError(err, span, codes.Error, "handshake response too large")
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	logging.Trace(c.logger, "handshake response received", zap.ByteString("response", response.Bytes()))
	c.mu.Lock()
	handshake := c.handshake
	c.mu.Unlock()
	if err := handshake.Complete(response.Bytes()); err != nil {
		return handleError(HandshakeError{Err: err}, span, codes.Error, "handshake rejected")
	}
	c.handshakeReceived.Store(true)
	c.connected.notifyAll(struct{}{})
	span.AddEvent(eventHandshakeReceived)
	span.SetStatus(codes.Ok, codes.Ok.String())
	c.logger.Info("connected", zap.String("url", c.target.String()))
	return nil
}

// Dispatch a decoded frame. Return true when the reader must stop.
func (c *WebsocketConnection) dispatch(ctx context.Context, span trace.Span, frame adapters.Frame) bool {
	c.framesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFrameType, frame.Type.String())))
	logging.Trace(c.logger, "frame received",
		zap.Stringer("type", frame.Type),
		zap.ByteString("payload", frame.Payload))
	switch frame.Type {
	case adapters.Ping:
		err := c.writeFrame(ctx, adapters.Frame{Type: adapters.Pong, Payload: frame.Payload})
		if err != nil && !errors.Is(err, ErrConnectionClosed) {
			c.logger.Warn("failed to answer ping", zap.Error(err))
		}
	case adapters.Text:
		msg := Message{Type: adapters.Text, Payload: frame.Payload}
		c.queue.Push(msg)
		c.newMessage.notifyAll(msg)
		c.messagesDelivered.Add(ctx, 1)
	case adapters.Close:
		span.AddEvent(eventCloseReceived, trace.WithAttributes(
			attribute.Int(attrCloseCode, int(frame.CloseCode)),
			attribute.String(attrCloseReason, frame.CloseReason),
		))
		c.logger.Info("close frame received",
			zap.Int("code", int(frame.CloseCode)),
			zap.String("reason", frame.CloseReason))
		reply := adapters.Frame{Type: adapters.Close}
		if frame.CloseCode != adapters.NoStatusReceived {
			reply.CloseCode = frame.CloseCode
		}
		if err := c.writeFrame(ctx, reply); err != nil {
			c.logger.Debug("failed to echo close frame", zap.Error(err))
		}
		c.terminate(nil)
		return true
	case adapters.Pong:
		c.logger.Debug("pong received")
	default:
		c.logger.Debug("ignoring frame", zap.Stringer("type", frame.Type), zap.Int("length", len(frame.Payload)))
	}
	return false
}

/*************************************************************************************************/
/* INTERNALS                                                                                     */
/*************************************************************************************************/

// Move the connection out of the Open state. A nil err, or any error after Close has been
// called, is a normal termination. Otherwise err becomes the terminal error. The transport is
// closed, the queue is closed and pending waiters are failed. Return false if the connection
// was already terminated.
func (c *WebsocketConnection) terminate(err error) bool {
	c.mu.Lock()
	if c.state == Closed || c.state == Failed {
		c.mu.Unlock()
		return false
	}
	previous := c.state
	if c.closing {
		err = nil
	}
	switch {
	case err == nil:
		c.state = Closed
	case previous == Open:
		c.state = Failed
		c.err = err
	default:
		c.state = Closed
		c.err = err
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			c.logger.Debug("failed to close transport", zap.Error(cerr))
		}
	}
	queueErr := err
	if queueErr == nil {
		queueErr = ErrConnectionClosed
	}
	c.queue.CloseWithError(queueErr)
	c.connected.failAll(queueErr)
	c.newMessage.failAll(queueErr)
	c.doneOnce.Do(func() { close(c.done) })
	if err != nil && previous == Open {
		c.logger.Error("connection failed", zap.Error(err))
	} else {
		c.logger.Info("disconnected")
	}
	return true
}

// Encode and write a frame under the write lock.
func (c *WebsocketConnection) writeFrame(ctx context.Context, frame adapters.Frame) error {
	c.mu.Lock()
	conn := c.conn
	handshake := c.handshake
	c.mu.Unlock()
	if conn == nil || handshake == nil {
		return ErrConnectionClosed
	}
	raw, err := c.codec.Encode(frame, handshake.Version())
	if err != nil {
		return err
	}
	if err := c.writeRaw(conn, raw); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		return err
	}
	c.framesSent.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFrameType, frame.Type.String())))
	logging.Trace(c.logger, "frame sent", zap.Stringer("type", frame.Type), zap.Int("length", len(frame.Payload)))
	return nil
}

// Write raw bytes under the write lock, with the write deadline if any.
func (c *WebsocketConnection) writeRaw(conn net.Conn, raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeoutMs > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(time.Duration(c.opts.WriteTimeoutMs) * time.Millisecond)); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write(raw)
	return err
}
