package wsclientengine

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by lib. tracer and meter
	pkgName = "gowaithook.wsclientengine"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events and attributes
	namespace = "wsclientengine"
	// Subnamespace used by spans related to the background reader
	readerRoot = namespace + ".reader"

	// Name of span used to trace Connect
	spanConnect = namespace + ".connect"
	// Name of span used to trace Send
	spanSend = namespace + ".send"
	// Name of span used to trace Close
	spanClose = namespace + ".close"
	// Name of span used to trace the background reader lifetime
	spanReaderRun = readerRoot + ".run"
	// Name of span used to trace the handshake response processing
	spanReaderHandshake = readerRoot + ".handshake"

	// Event used in span to signal the handshake has been received
	eventHandshakeReceived = namespace + ".handshake_received"
	// Event used in span to signal a close frame has been received
	eventCloseReceived = namespace + ".close_received"
	// Event used in span to signal the reader goroutine has exited
	eventReaderExit = readerRoot + ".exit"

	// Attribute used to store the connection ID
	attrConnectionId = namespace + ".connection.id"
	// Attribute used to store the target URL
	attrUrl = "url.full"
	// Attribute used to indicate whether TLS is used
	attrTLS = namespace + ".tls"
	// Attribute used to indicate frame type
	attrFrameType = namespace + ".frame.type"
	// Attribute used to indicate frame payload length
	attrFrameLength = namespace + ".frame.length"
	// Attribute used to indicate whether a close frame is sent on close
	attrSendCloseFrame = namespace + ".send_close_frame"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close.code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close.reason"

	// Name of the counter of frames received from the server
	metricFramesReceived = namespace + ".frames.received"
	// Name of the counter of frames written to the server
	metricFramesSent = namespace + ".frames.sent"
	// Name of the counter of text messages pushed to the message queue
	metricMessagesDelivered = namespace + ".messages.delivered"
)

/*************************************************************************************************/
/* TRACING UTILITIES                                                                             */
/*************************************************************************************************/

// # Description
//
// The function records the input error in the provided span and set the span status with the
// provided code and description. The function returns the provided error.
//
// # Usage tips
//
// The function is meant to replace code blocks like this one:
//
//	if err != nil {
//			span.RecordError(err)
//			span.SetStatus(code, description)
//			return err
//	}
//
// By:
//
//	if err != nil {
//			return handleError(err, span, code, description)
//	}
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
