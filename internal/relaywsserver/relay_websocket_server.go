// Package relaywsserver contains a websocket server which behaves like a waithook server: clients
// subscribe to a path with a websocket connection and every HTTP request sent to that path is
// relayed to them as a JSON message. The server also exposes controls used by tests.
package relaywsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Path of the statistics endpoint
const StatsPath = "/@/stats"

// Timeout used when writing control frames
const controlWriteTimeout = 5 * time.Second

// Alias type used as key in context for the session ID
type contextKey string

const (
	sessionId contextKey = "sessionId"
)

// JSON message relayed to subscribers for each received HTTP request
type RelayedRequest struct {
	// Request method
	Method string `json:"method"`
	// Request path and query
	URL string `json:"url"`
	// Request headers, first value only
	Headers map[string]string `json:"headers"`
	// Request body
	Body string `json:"body"`
}

// Response of the statistics endpoint
type Stats struct {
	// Total number of subscribers
	TotalListeners int `json:"total_listeners"`
	// Number of subscribers per path
	Listeners map[string]int `json:"listeners"`
}

// Message received from a subscriber
type ReceivedMessage struct {
	// Session which sent the message
	SessionID uuid.UUID
	// Path the session subscribed to
	Path string
	// Gorilla message type
	Type int
	// Message payload
	Payload []byte
}

// A websocket subscriber
type subscriber struct {
	id   uuid.UUID
	path string
	conn *websocket.Conn
	// Serializes data frames writes. Control frames can be written concurrently.
	writeMu sync.Mutex
}

// Structure for the relay websocket server
type RelayWebsocketServer struct {
	// Underlying http.Server
	httpServer *http.Server
	// Websocket upgrader
	upgrader websocket.Upgrader
	// Listener opened by Start
	listener net.Listener
	// Indicates that server has started
	started bool
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server
	cancelServerCtx context.CancelFunc
	// Internal mutex used to coordinate start/stop
	startMu *sync.Mutex
	// Logger
	logger *zap.Logger

	// Guards subscribers, received, pings, pongs and changed
	mu sync.Mutex
	// Subscribers per path
	subscribers map[string]map[uuid.UUID]*subscriber
	// Messages received from subscribers
	received []ReceivedMessage
	// Number of pings received from subscribers
	pings int
	// Number of pongs received from subscribers
	pongs int
	// Closed and replaced each time subscribers change
	changed chan struct{}
}

// # Description
//
// Factory which creates a new, non-started RelayWebsocketServer.
//
// # Inputs
//
//   - httpServer: The underlying HTTP Server to use. The provided HTTP Server handler will be
//     overriden with this server handler. If nil is provided, a default HTTP server listening
//     on a random port of 127.0.0.1 will be used.
//   - logger: Logger to use. If nil, logs are discarded.
//
// # Returns
//
// A new, non-started RelayWebsocketServer.
func NewRelayWebsocketServer(httpServer *http.Server, logger *zap.Logger) *RelayWebsocketServer {
	if httpServer == nil {
		httpServer = &http.Server{Addr: "127.0.0.1:0", BaseContext: func(l net.Listener) context.Context { return context.Background() }}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &RelayWebsocketServer{
		httpServer:  httpServer,
		upgrader:    websocket.Upgrader{},
		started:     false,
		startMu:     &sync.Mutex{},
		logger:      logger,
		subscribers: map[string]map[uuid.UUID]*subscriber{},
		changed:     make(chan struct{}),
	}
	httpServer.Handler = srv
	return srv
}

// # Description
//
// Open the listener and start serving in the background.
func (srv *RelayWebsocketServer) Start() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started {
		return fmt.Errorf("server already started")
	}
	listener, err := net.Listen("tcp", srv.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.httpServer.Addr, err)
	}
	srv.listener = listener
	srv.serverCtx, srv.cancelServerCtx = context.WithCancel(context.Background())
	srv.started = true
	go srv.httpServer.Serve(listener)
	return nil
}

// # Description
//
// Stop the server and close all subscriber connections without a close frame.
func (srv *RelayWebsocketServer) Stop() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return fmt.Errorf("server not started")
	}
	srv.started = false
	srv.cancelServerCtx()
	return srv.httpServer.Close()
}

// Address the server listens on. Empty if the server has not been started.
func (srv *RelayWebsocketServer) Addr() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Host and port the server listens on.
func (srv *RelayWebsocketServer) HostPort() (string, int, error) {
	host, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		return "", 0, err
	}
	p, err := net.LookupPort("tcp", port)
	return host, p, err
}

// # Description
//
// Server handler. Websocket upgrades subscribe to the request path, GET /@/stats returns the
// statistics and any other request is relayed to the subscribers of its path.
func (srv *RelayWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		srv.subscribe(w, r)
	case r.URL.Path == StatsPath && r.Method == http.MethodGet:
		srv.serveStats(w)
	default:
		srv.relay(w, r)
	}
}

func (srv *RelayWebsocketServer) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("an error occured while accepting client connection", zap.Error(err))
		return
	}
	sub := &subscriber{id: uuid.New(), path: r.URL.Path, conn: conn}
	conn.SetPongHandler(func(string) error {
		srv.mu.Lock()
		srv.pongs++
		srv.mu.Unlock()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		srv.mu.Lock()
		srv.pings++
		srv.mu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	srv.mu.Lock()
	if srv.subscribers[sub.path] == nil {
		srv.subscribers[sub.path] = map[uuid.UUID]*subscriber{}
	}
	srv.subscribers[sub.path][sub.id] = sub
	srv.notifyChangedLocked()
	srv.mu.Unlock()
	srv.logger.Info("new subscriber", zap.String("path", sub.path), zap.Stringer("session_id", sub.id))
	ctx := context.WithValue(srv.serverCtx, sessionId, sub.id)
	go srv.closeWatchdog(ctx, conn)
	go srv.runClientSession(ctx, sub)
}

// Read messages from the subscriber until the connection is closed.
func (srv *RelayWebsocketServer) runClientSession(ctx context.Context, sub *subscriber) {
	defer srv.unsubscribe(sub)
	for {
		mt, message, err := sub.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				srv.logger.Info("connection closed", zap.Any("session_id", ctx.Value(sessionId)), zap.Int("code", ce.Code))
				return
			}
			srv.logger.Info("read error", zap.Any("session_id", ctx.Value(sessionId)), zap.Error(err))
			return
		}
		srv.mu.Lock()
		srv.received = append(srv.received, ReceivedMessage{SessionID: sub.id, Path: sub.path, Type: mt, Payload: message})
		srv.mu.Unlock()
	}
}

func (srv *RelayWebsocketServer) unsubscribe(sub *subscriber) {
	sub.conn.Close()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.subscribers[sub.path], sub.id)
	if len(srv.subscribers[sub.path]) == 0 {
		delete(srv.subscribers, sub.path)
	}
	srv.notifyChangedLocked()
}

// This function waits for a cancelation signal on provided context Done channel
// and close the provided websocket connection
func (srv *RelayWebsocketServer) closeWatchdog(ctx context.Context, conn *websocket.Conn) {
	<-ctx.Done()
	conn.Close()
}

func (srv *RelayWebsocketServer) serveStats(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(srv.Stats()); err != nil {
		srv.logger.Warn("failed to write stats", zap.Error(err))
	}
}

func (srv *RelayWebsocketServer) relay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	headers := map[string]string{"Host": r.Host}
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	payload, err := json.Marshal(RelayedRequest{
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Headers: headers,
		Body:    string(body),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	count := srv.Publish(r.URL.Path, payload)
	srv.logger.Info("request relayed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("subscribers", count))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK\n")
}

/*************************************************************************************************/
/* TEST CONTROLS                                                                                 */
/*************************************************************************************************/

// Return current subscribers statistics
func (srv *RelayWebsocketServer) Stats() Stats {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	stats := Stats{Listeners: map[string]int{}}
	for path, subs := range srv.subscribers {
		stats.Listeners[path] = len(subs)
		stats.TotalListeners += len(subs)
	}
	return stats
}

// # Description
//
// Send a raw text message to every subscriber of path.
//
// # Returns
//
// The number of subscribers the message has been written to.
func (srv *RelayWebsocketServer) Publish(path string, payload []byte) int {
	count := 0
	for _, sub := range srv.subscribersOf(path) {
		sub.writeMu.Lock()
		err := sub.conn.WriteMessage(websocket.TextMessage, payload)
		sub.writeMu.Unlock()
		if err != nil {
			srv.logger.Warn("write error", zap.Stringer("session_id", sub.id), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

// Send a ping to every subscriber of path
func (srv *RelayWebsocketServer) Ping(path string) error {
	for _, sub := range srv.subscribersOf(path) {
		if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
			return err
		}
	}
	return nil
}

// Number of pings received from subscribers
func (srv *RelayWebsocketServer) Pings() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.pings
}

// Number of pongs received from subscribers
func (srv *RelayWebsocketServer) Pongs() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.pongs
}

// Close the connections of every subscriber of path without sending a close frame.
func (srv *RelayWebsocketServer) Drop(path string) {
	for _, sub := range srv.subscribersOf(path) {
		sub.conn.Close()
	}
}

// Send a close frame to every subscriber of path.
func (srv *RelayWebsocketServer) CloseSubscribers(path string, code int, reason string) error {
	for _, sub := range srv.subscribersOf(path) {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteTimeout)); err != nil {
			return err
		}
	}
	return nil
}

// Messages received from subscribers so far, oldest first
func (srv *RelayWebsocketServer) Received() []ReceivedMessage {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return append([]ReceivedMessage(nil), srv.received...)
}

// # Description
//
// Block until path has exactly count subscribers or until ctx is done.
func (srv *RelayWebsocketServer) WaitSubscribers(ctx context.Context, path string, count int) error {
	for {
		srv.mu.Lock()
		current := len(srv.subscribers[path])
		changed := srv.changed
		srv.mu.Unlock()
		if current == count {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d subscribers on %s, expected %d: %w", current, path, count, ctx.Err())
		case <-changed:
		}
	}
}

func (srv *RelayWebsocketServer) subscribersOf(path string) []*subscriber {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	subs := make([]*subscriber, 0, len(srv.subscribers[path]))
	for _, sub := range srv.subscribers[path] {
		subs = append(subs, sub)
	}
	return subs
}

func (srv *RelayWebsocketServer) notifyChangedLocked() {
	close(srv.changed)
	srv.changed = make(chan struct{})
}
