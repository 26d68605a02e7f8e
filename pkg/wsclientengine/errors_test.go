package wsclientengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for error types unit tests
type ErrorsUnitTestSuite struct {
	suite.Suite
}

// Run ErrorsUnitTestSuite test suite
func TestErrorsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test Unwrap of the typed errors
func (suite *ErrorsUnitTestSuite) TestUnwrap() {
	inner := fmt.Errorf("inner error")
	require.ErrorIs(suite.T(), TransportOpenError{Address: "localhost:80", Err: inner}, inner)
	require.ErrorIs(suite.T(), HandshakeError{Err: inner}, inner)
	require.ErrorIs(suite.T(), FrameDecodeError{Err: inner}, inner)
	require.Contains(suite.T(), TransportOpenError{Address: "localhost:80", Err: inner}.Error(), "localhost:80")
}

// Test TimeoutError is a deadline error
func (suite *ErrorsUnitTestSuite) TestTimeoutError() {
	err := TimeoutError{Elapsed: 100 * time.Millisecond}
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	require.Contains(suite.T(), err.Error(), "execution expired")
	var target TimeoutError
	require.True(suite.T(), errors.As(fmt.Errorf("wrapped: %w", err), &target))
	require.Equal(suite.T(), 100*time.Millisecond, target.Elapsed)
}

// Test ErrConnectionClosed wraps net.ErrClosed
func (suite *ErrorsUnitTestSuite) TestErrConnectionClosed() {
	require.ErrorIs(suite.T(), ErrConnectionClosed, net.ErrClosed)
}

// Test context errors are converted to the wait errors
func (suite *ErrorsUnitTestSuite) TestWaitError() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	var target TimeoutError
	require.ErrorAs(suite.T(), waitError(ctx, time.Now()), &target)
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(suite.T(), waitError(ctx, time.Now()), context.Canceled)
}
