package wsclientengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

/*************************************************************************************************/
/* FAKE PING SENDER                                                                              */
/*************************************************************************************************/

// PingSender which records pings and returns scripted errors
type fakePingSender struct {
	pings atomic.Int32
	done  chan struct{}
	once  sync.Once
	// Error returned by SendPing
	err error
}

func newFakePingSender(err error) *fakePingSender {
	return &fakePingSender{done: make(chan struct{}), err: err}
}

func (f *fakePingSender) SendPing(ctx context.Context) error {
	f.pings.Add(1)
	return f.err
}

func (f *fakePingSender) Done() <-chan struct{} {
	return f.done
}

func (f *fakePingSender) stop() {
	f.once.Do(func() { close(f.done) })
}

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for Keepalive unit tests
type KeepaliveUnitTestSuite struct {
	suite.Suite
}

// Run KeepaliveUnitTestSuite test suite
func TestKeepaliveUnitTestSuite(t *testing.T) {
	suite.Run(t, new(KeepaliveUnitTestSuite))
}

// Run keepalive in a goroutine and return a channel closed when it exits
func runKeepalive(ctx context.Context, target PingSender, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		Keepalive(ctx, target, interval, logger)
	}()
	return exited
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test pings are sent periodically and keepalive exits when the connection stops
func (suite *KeepaliveUnitTestSuite) TestPingsUntilDone() {
	sender := newFakePingSender(nil)
	exited := runKeepalive(context.Background(), sender, 10*time.Millisecond, nil)
	require.Eventually(suite.T(), func() bool { return sender.pings.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	sender.stop()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		suite.FailNow("keepalive did not exit")
	}
}

// Test closed connection errors stop the keepalive silently
func (suite *KeepaliveUnitTestSuite) TestClosedErrorIsSwallowed() {
	core, logs := observer.New(zapcore.DebugLevel)
	sender := newFakePingSender(fmt.Errorf("write: %w", ErrConnectionClosed))
	exited := runKeepalive(context.Background(), sender, 5*time.Millisecond, zap.New(core))
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		suite.FailNow("keepalive did not exit")
	}
	require.Equal(suite.T(), int32(1), sender.pings.Load())
	require.Equal(suite.T(), 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

// Test unexpected errors are logged and the keepalive goes on
func (suite *KeepaliveUnitTestSuite) TestUnexpectedErrorIsLogged() {
	core, logs := observer.New(zapcore.DebugLevel)
	sender := newFakePingSender(errors.New("unexpected"))
	ctx, cancel := context.WithCancel(context.Background())
	exited := runKeepalive(ctx, sender, 5*time.Millisecond, zap.New(core))
	require.Eventually(suite.T(), func() bool { return sender.pings.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-exited
	require.GreaterOrEqual(suite.T(), logs.FilterMessage("unexpected error while sending keepalive ping").Len(), 2)
}

// Test a non positive interval disables keepalive
func (suite *KeepaliveUnitTestSuite) TestDisabled() {
	sender := newFakePingSender(nil)
	Keepalive(context.Background(), sender, 0, nil)
	require.Equal(suite.T(), int32(0), sender.pings.Load())
}

// Test closed connection errors classification
func (suite *KeepaliveUnitTestSuite) TestIsClosedError() {
	require.True(suite.T(), IsClosedError(ErrConnectionClosed))
	require.False(suite.T(), IsClosedError(errors.New("other")))
	require.False(suite.T(), IsClosedError(nil))
}
