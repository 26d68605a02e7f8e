package wsclientengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gbdevw/gowaithook/pkg/logging"
	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters"
	wsadaptergobwas "github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters/gobwas"
	"github.com/gobwas/ws"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

/*************************************************************************************************/
/* SCRIPTED PEER                                                                                 */
/*************************************************************************************************/

// Server side of a net.Pipe, scripted by tests
type testPeer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTestPeer(conn net.Conn) *testPeer {
	return &testPeer{conn: conn, reader: bufio.NewReader(conn)}
}

// Read the opening handshake request
func (p *testPeer) readRequest() (*http.Request, error) {
	return http.ReadRequest(p.reader)
}

// Accept the opening handshake
func (p *testPeer) accept(req *http.Request) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + wsadaptergobwas.ComputeAcceptKey(req.Header.Get("Sec-WebSocket-Key")) + "\r\n" +
		"\r\n"
	_, err := p.conn.Write([]byte(resp))
	return err
}

// Write an unmasked, final server frame
func (p *testPeer) writeFrame(op ws.OpCode, payload []byte) error {
	return ws.WriteFrame(p.conn, ws.NewFrame(op, true, payload))
}

// Read and unmask a client frame
func (p *testPeer) readFrame() (ws.Frame, error) {
	f, err := ws.ReadFrame(p.reader)
	if err != nil {
		return f, err
	}
	return ws.UnmaskFrameInPlace(f), nil
}

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for WebsocketConnection unit tests. The server is a scripted peer on the other
// end of a net.Pipe returned by a mocked dialer.
type WebsocketConnectionUnitTestSuite struct {
	suite.Suite
}

// Run WebsocketConnectionUnitTestSuite test suite
func TestWebsocketConnectionUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketConnectionUnitTestSuite))
}

// Build a connection whose dialer returns the client end of a pipe.
func (suite *WebsocketConnectionUnitTestSuite) newPipeConnection() (*WebsocketConnection, *testPeer, *observer.ObservedLogs) {
	client, server := net.Pipe()
	suite.T().Cleanup(func() {
		client.Close()
		server.Close()
	})
	dialer := adapters.NewDialerInterfaceMock()
	dialer.On("Open", mock.Anything, "localhost", 80, mock.Anything).Return(client, nil)
	core, logs := observer.New(logging.TraceLevel)
	opts := NewWebsocketConnectionConfigurationOptions().WithPath("test-ruby").WithWriteTimeoutMs(5000)
	conn, err := NewWebsocketConnection(opts, dialer, nil, zap.New(core), nil, nil)
	require.NoError(suite.T(), err)
	return conn, newTestPeer(server), logs
}

// Connect and return the request read by the peer. The handshake is not accepted.
func (suite *WebsocketConnectionUnitTestSuite) connect(conn *WebsocketConnection, peer *testPeer) *http.Request {
	requests := make(chan *http.Request, 1)
	go func() {
		req, err := peer.readRequest()
		if err != nil {
			close(requests)
			return
		}
		requests <- req
	}()
	require.NoError(suite.T(), conn.Connect(context.Background()))
	req, ok := <-requests
	require.True(suite.T(), ok)
	return req
}

// Connect and accept the handshake.
func (suite *WebsocketConnectionUnitTestSuite) connectAndAccept(conn *WebsocketConnection, peer *testPeer) {
	req := suite.connect(conn, peer)
	require.NoError(suite.T(), peer.accept(req))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(suite.T(), conn.WaitHandshake(ctx))
}

// Context with a test timeout
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test the nominal scenario: connect, receive a message, close.
func (suite *WebsocketConnectionUnitTestSuite) TestEndToEnd() {
	conn, peer, _ := suite.newPipeConnection()
	require.Equal(suite.T(), Idle, conn.State())
	req := suite.connect(conn, peer)
	require.Equal(suite.T(), "/test-ruby", req.URL.Path)
	require.Equal(suite.T(), "localhost", req.Host)
	require.Equal(suite.T(), "13", req.Header.Get("Sec-WebSocket-Version"))
	require.NoError(suite.T(), peer.accept(req))
	require.NoError(suite.T(), conn.WaitHandshake(testContext(suite.T())))
	require.True(suite.T(), conn.Connected())
	require.Equal(suite.T(), Open, conn.State())

	require.NoError(suite.T(), peer.writeFrame(ws.OpText, []byte("test data")))
	msg, err := conn.WaitMessage(testContext(suite.T()))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "test data", msg.Text())
	require.Equal(suite.T(), adapters.Text, msg.Type)

	// Peer reads the close frame
	frames := make(chan ws.Frame, 1)
	go func() {
		f, err := peer.readFrame()
		if err == nil {
			frames <- f
		}
		close(frames)
	}()
	require.True(suite.T(), conn.Close(testContext(suite.T()), true))
	f, ok := <-frames
	require.True(suite.T(), ok)
	require.Equal(suite.T(), ws.OpClose, f.Header.OpCode)
	code, _ := ws.ParseCloseFrameData(f.Payload)
	require.Equal(suite.T(), ws.StatusNormalClosure, code)
	require.False(suite.T(), conn.Connected())
	require.Equal(suite.T(), Closed, conn.State())
	require.NoError(suite.T(), conn.Err())
	require.False(suite.T(), conn.Close(testContext(suite.T()), true))
	_, err = conn.WaitMessage(testContext(suite.T()))
	require.ErrorIs(suite.T(), err, ErrConnectionClosed)
	require.ErrorIs(suite.T(), conn.SendPing(testContext(suite.T())), ErrConnectionClosed)
	select {
	case <-conn.Done():
	default:
		suite.FailNow("done channel must be closed")
	}
}

// Test N text frames are returned by N WaitMessage calls, in order, each exactly once.
func (suite *WebsocketConnectionUnitTestSuite) TestMessagesOrder() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	const count = 50
	go func() {
		for i := 0; i < count; i++ {
			if err := peer.writeFrame(ws.OpText, []byte(fmt.Sprint(i))); err != nil {
				return
			}
		}
	}()
	for i := 0; i < count; i++ {
		msg, err := conn.WaitMessage(testContext(suite.T()))
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), fmt.Sprint(i), msg.Text())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := conn.WaitMessage(ctx)
	var timeout TimeoutError
	require.ErrorAs(suite.T(), err, &timeout)
}

// Test a ping results in exactly one pong echoing the payload and no queued message.
func (suite *WebsocketConnectionUnitTestSuite) TestPingAnsweredWithPong() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	require.NoError(suite.T(), peer.writeFrame(ws.OpPing, []byte("heartbeat")))
	f, err := peer.readFrame()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), ws.OpPong, f.Header.OpCode)
	require.Equal(suite.T(), "heartbeat", string(f.Payload))
	// No other frame follows the pong
	require.NoError(suite.T(), peer.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = peer.reader.Peek(1)
	var netErr net.Error
	require.ErrorAs(suite.T(), err, &netErr)
	require.True(suite.T(), netErr.Timeout())
	require.Equal(suite.T(), 0, conn.queue.Len())
}

// Test sends issued before the handshake are written only once the handshake is received.
func (suite *WebsocketConnectionUnitTestSuite) TestSendWaitsForHandshake() {
	conn, peer, _ := suite.newPipeConnection()
	req := suite.connect(conn, peer)
	sent := make(chan error, 1)
	go func() {
		sent <- conn.SendPing(testContext(suite.T()))
	}()
	// Nothing is written before the handshake response
	require.NoError(suite.T(), peer.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := peer.reader.Peek(1)
	var netErr net.Error
	require.ErrorAs(suite.T(), err, &netErr)
	require.True(suite.T(), netErr.Timeout())
	require.NoError(suite.T(), peer.conn.SetReadDeadline(time.Time{}))
	select {
	case <-sent:
		suite.FailNow("send must block until the handshake is received")
	default:
	}
	require.NoError(suite.T(), peer.accept(req))
	f, err := peer.readFrame()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), ws.OpPing, f.Header.OpCode)
	require.NoError(suite.T(), <-sent)
}

// Test every caller blocked in WaitNewMessage receives the next message exactly once.
func (suite *WebsocketConnectionUnitTestSuite) TestWaitNewMessageMulticast() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	const count = 10
	results := make(chan string, 2*count)
	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()
			msg, err := conn.WaitNewMessage(testContext(suite.T()))
			if err == nil {
				results <- msg.Text()
			}
		}()
	}
	require.Eventually(suite.T(), func() bool { return conn.newMessage.len() == count }, 5*time.Second, time.Millisecond)
	require.NoError(suite.T(), peer.writeFrame(ws.OpText, []byte("broadcast")))
	wg.Wait()
	close(results)
	received := 0
	for text := range results {
		require.Equal(suite.T(), "broadcast", text)
		received++
	}
	require.Equal(suite.T(), count, received)
	require.Equal(suite.T(), 0, conn.newMessage.len())
	// The message is also queued
	msg, err := conn.WaitMessage(testContext(suite.T()))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "broadcast", msg.Text())
}

// Test a WaitNewMessage abandoned by its deadline unregisters its waiter.
func (suite *WebsocketConnectionUnitTestSuite) TestWaitNewMessageTimeout() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.WaitNewMessage(ctx)
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	require.Equal(suite.T(), 0, conn.newMessage.len())
}

// Test a connection dropped without close frame surfaces the terminal error to blocked and later
// consumers, and Close is a safe no-op afterwards.
func (suite *WebsocketConnectionUnitTestSuite) TestAbruptDisconnect() {
	conn, peer, logs := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	errs := make(chan error, 1)
	go func() {
		_, err := conn.WaitMessage(context.Background())
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(suite.T(), peer.conn.Close())
	var err error
	select {
	case err = <-errs:
	case <-time.After(5 * time.Second):
		suite.FailNow("WaitMessage must not hang after a disconnect")
	}
	var closeErr adapters.WebsocketCloseError
	require.ErrorAs(suite.T(), err, &closeErr)
	require.Equal(suite.T(), adapters.AbnormalClosure, closeErr.Code)
	_, err = conn.WaitMessage(testContext(suite.T()))
	require.ErrorAs(suite.T(), err, &closeErr)
	<-conn.Done()
	require.Equal(suite.T(), Failed, conn.State())
	require.ErrorAs(suite.T(), conn.Err(), &closeErr)
	require.False(suite.T(), conn.Connected())
	require.False(suite.T(), conn.Close(testContext(suite.T()), true))
	require.Equal(suite.T(), 1, logs.FilterMessage("connection failed").Len())
}

// Test a close frame from the server is echoed and ends the connection normally.
func (suite *WebsocketConnectionUnitTestSuite) TestCloseFrameFromServer() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	require.NoError(suite.T(), peer.writeFrame(ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "bye")))
	f, err := peer.readFrame()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), ws.OpClose, f.Header.OpCode)
	code, _ := ws.ParseCloseFrameData(f.Payload)
	require.Equal(suite.T(), ws.StatusGoingAway, code)
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		suite.FailNow("connection must stop after a close frame")
	}
	require.Equal(suite.T(), Closed, conn.State())
	require.NoError(suite.T(), conn.Err())
	_, err = conn.WaitMessage(testContext(suite.T()))
	require.ErrorIs(suite.T(), err, ErrConnectionClosed)
}

// Test a rejected handshake becomes the terminal error and fails handshake waiters.
func (suite *WebsocketConnectionUnitTestSuite) TestHandshakeRejected() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connect(conn, peer)
	_, err := peer.conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(suite.T(), err)
	err = conn.WaitHandshake(testContext(suite.T()))
	var hsErr HandshakeError
	require.ErrorAs(suite.T(), err, &hsErr)
	_, err = conn.WaitMessage(testContext(suite.T()))
	require.ErrorAs(suite.T(), err, &hsErr)
	require.Equal(suite.T(), Failed, conn.State())
	require.ErrorAs(suite.T(), conn.SendMessage(testContext(suite.T()), "hello"), &hsErr)
}

// Test a protocol violation becomes a FrameDecodeError.
func (suite *WebsocketConnectionUnitTestSuite) TestFrameDecodeError() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	masked := ws.MaskFrame(ws.NewFrame(ws.OpText, true, []byte("masked")))
	require.NoError(suite.T(), ws.WriteFrame(peer.conn, masked))
	_, err := conn.WaitMessage(testContext(suite.T()))
	var decodeErr FrameDecodeError
	require.ErrorAs(suite.T(), err, &decodeErr)
	require.Equal(suite.T(), Failed, conn.State())
}

// Test Close before the handshake does not send a close frame and fails handshake waiters.
func (suite *WebsocketConnectionUnitTestSuite) TestCloseBeforeHandshake() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connect(conn, peer)
	waiting := make(chan error, 1)
	go func() {
		waiting <- conn.WaitHandshake(context.Background())
	}()
	require.Eventually(suite.T(), func() bool { return conn.connected.len() == 1 }, 5*time.Second, time.Millisecond)
	require.True(suite.T(), conn.Close(testContext(suite.T()), true))
	require.ErrorIs(suite.T(), <-waiting, ErrConnectionClosed)
	// Peer observes the end of stream without any frame
	_, err := peer.reader.Peek(1)
	require.Error(suite.T(), err)
	require.Equal(suite.T(), Closed, conn.State())
}

// Test Connect can only be called once.
func (suite *WebsocketConnectionUnitTestSuite) TestConnectTwice() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	require.ErrorIs(suite.T(), conn.Connect(testContext(suite.T())), ErrAlreadyConnected)
}

// Test a transport failure is returned by Connect and unblocks waiters.
func (suite *WebsocketConnectionUnitTestSuite) TestTransportOpenError() {
	expected := errors.New("connection refused")
	dialer := adapters.NewDialerInterfaceMock()
	dialer.On("Open", mock.Anything, "localhost", 443, mock.Anything).Return(nil, expected)
	conn, err := NewWebsocketConnection(
		NewWebsocketConnectionConfigurationOptions().WithPort(443), dialer, nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "wss://localhost/", conn.Target().String())
	err = conn.Connect(testContext(suite.T()))
	var openErr TransportOpenError
	require.ErrorAs(suite.T(), err, &openErr)
	require.ErrorIs(suite.T(), err, expected)
	require.Equal(suite.T(), "localhost:443", openErr.Address)
	require.Equal(suite.T(), Closed, conn.State())
	require.ErrorIs(suite.T(), conn.WaitHandshake(testContext(suite.T())), expected)
	require.False(suite.T(), conn.Close(testContext(suite.T()), true))
	dialer.AssertCalled(suite.T(), "Open", mock.Anything, "localhost", 443, mock.AnythingOfType("*tls.Config"))
}

// Test the raw handshake request and response are logged at trace level.
func (suite *WebsocketConnectionUnitTestSuite) TestTraceLogging() {
	conn, peer, logs := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	entries := logs.FilterMessage("sending handshake request").All()
	require.Len(suite.T(), entries, 1)
	require.Equal(suite.T(), logging.TraceLevel, entries[0].Level)
	require.Contains(suite.T(), entries[0].ContextMap()["request"], "Sec-WebSocket-Version")
	require.Eventually(suite.T(), func() bool {
		return logs.FilterMessage("handshake response received").Len() == 1
	}, 5*time.Second, time.Millisecond)
}

// Test invalid options are rejected by the factory.
func (suite *WebsocketConnectionUnitTestSuite) TestInvalidOptions() {
	conn, err := NewWebsocketConnection(NewWebsocketConnectionConfigurationOptions().WithPort(0), nil, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	require.Nil(suite.T(), conn)
}

// Test keepalive pings a live connection and exits once it is closed.
func (suite *WebsocketConnectionUnitTestSuite) TestKeepaliveOnConnection() {
	conn, peer, _ := suite.newPipeConnection()
	suite.connectAndAccept(conn, peer)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		Keepalive(context.Background(), conn, 10*time.Millisecond, nil)
	}()
	f, err := peer.readFrame()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), ws.OpPing, f.Header.OpCode)
	// Drain frames until the connection closes
	go func() {
		for {
			if _, err := peer.readFrame(); err != nil {
				return
			}
		}
	}()
	require.True(suite.T(), conn.Close(testContext(suite.T()), true))
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		suite.FailNow("keepalive must exit when the connection closes")
	}
}
