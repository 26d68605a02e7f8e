package wsclientengine

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Connection pinged by Keepalive
type PingSender interface {
	// Send a ping frame
	SendPing(ctx context.Context) error
	// Channel closed when the connection stops
	Done() <-chan struct{}
}

// # Description
//
// Send a ping every interval until the connection stops or ctx is done. The function blocks:
// run it in its own goroutine.
//
// Errors caused by a closed connection end the keepalive silently. Other errors are logged and
// the keepalive goes on.
func Keepalive(ctx context.Context, target PingSender, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-target.Done():
			return
		case <-ticker.C:
			// Done may be closed while the ticker fired
			select {
			case <-target.Done():
				return
			default:
			}
			err := target.SendPing(ctx)
			switch {
			case err == nil:
				logger.Debug("keepalive ping sent")
			case IsClosedError(err):
				logger.Debug("keepalive stopped: connection closed", zap.Error(err))
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Error("unexpected error while sending keepalive ping", zap.Error(err))
			}
		}
	}
}

// # Description
//
// Return true if err is caused by writing to an already closed connection.
func IsClosedError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
