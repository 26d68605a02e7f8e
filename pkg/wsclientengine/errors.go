package wsclientengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

/*************************************************************************************************/
/* SENTINEL ERRORS                                                                               */
/*************************************************************************************************/

// Error returned when Connect is called on a connection which is not idle anymore.
var ErrAlreadyConnected = errors.New("websocket connection has already been started")

// Error returned when a frame is sent on a connection which is not open and by a queue closed
// after a normal close. It wraps net.ErrClosed.
var ErrConnectionClosed = fmt.Errorf("websocket connection is closed: %w", net.ErrClosed)

/*************************************************************************************************/
/* TRANSPORT OPEN ERROR                                                                          */
/*************************************************************************************************/

// Error returned by Connect when the byte stream to the server cannot be opened.
type TransportOpenError struct {
	// Target address
	Address string
	// Embedded error
	Err error
}

func (err TransportOpenError) Error() string {
	return fmt.Sprintf("failed to open transport to %s: %v", err.Address, err.Err)
}

func (err TransportOpenError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* HANDSHAKE ERROR                                                                               */
/*************************************************************************************************/

// Error recorded as terminal error when the server response to the opening handshake cannot be
// read or is rejected.
type HandshakeError struct {
	// Embedded error
	Err error
}

func (err HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed: %v", err.Err)
}

func (err HandshakeError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* FRAME DECODE ERROR                                                                            */
/*************************************************************************************************/

// Error recorded as terminal error when the frame decoder detects a protocol violation.
type FrameDecodeError struct {
	// Embedded error
	Err error
}

func (err FrameDecodeError) Error() string {
	return fmt.Sprintf("failed to decode websocket frame: %v", err.Err)
}

func (err FrameDecodeError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* TIMEOUT ERROR                                                                                 */
/*************************************************************************************************/

// Error returned when a wait is abandoned because its deadline expired.
//
// The error unwraps to context.DeadlineExceeded.
type TimeoutError struct {
	// Time spent waiting
	Elapsed time.Duration
}

func (err TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: execution expired", err.Elapsed)
}

func (err TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Convert a context error to the error returned by waits.
func waitError(ctx context.Context, start time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutError{Elapsed: time.Since(start)}
	}
	return ctx.Err()
}
