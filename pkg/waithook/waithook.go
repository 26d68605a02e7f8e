// Package waithook subscribes to a waithook server path and receives the HTTP requests the
// server relays over a websocket connection. Received webhooks can be filtered and forwarded to
// another HTTP endpoint.
package waithook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gbdevw/gowaithook/pkg/logging"
	"github.com/gbdevw/gowaithook/pkg/wsclientengine"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Webhook filter. Webhooks for which the filter returns false are skipped by WaitMessage.
type Filter func(webhook *Webhook) bool

// A subscription to a waithook server path.
type Waithook struct {
	// Subscribed path
	path string
	// Options
	opts *WaithookOptions
	// Logger
	logger *zap.Logger
	// Tracer used to trace forwarding
	tracer trace.Tracer
	// HTTP client used to forward webhooks
	httpClient *http.Client
	// Underlying websocket connection
	client *wsclientengine.WebsocketConnection

	// Guards started, filter, messages and stopKeepalive
	mu sync.Mutex
	// Set once Connect has been called
	started bool
	// Optional filter
	filter Filter
	// Accepted webhooks
	messages []*Webhook
	// Stops the running keepalive if any
	stopKeepalive context.CancelFunc
}

// # Description
//
// Factory - Create a subscription to path. When opts.AutoConnect is set, the subscription is
// connected before the function returns.
//
// # Inputs
//
//   - ctx: Context used for connection, handshake and tracing
//   - path: Subscribed path. A leading "/" is optional.
//   - opts: Options. Defaults are used when nil.
//
// # Returns
//
// The subscription or an error if options are invalid or if connection failed.
func New(ctx context.Context, path string, opts *WaithookOptions) (*Waithook, error) {
	if opts == nil {
		opts = NewWaithookOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		level, err := logging.ParseLevel(opts.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = logging.NewLogger(opts.LogOutput, level, "waithook")
	}
	tracerProvider := opts.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	path = strings.TrimPrefix(path, "/")
	connOpts := wsclientengine.NewWebsocketConnectionConfigurationOptions().
		WithHost(opts.Host).
		WithPort(opts.Port).
		WithPath(path).
		WithTLSMinVersion(opts.TLSMinVersion).
		WithTLSInsecureSkipVerify(opts.TLSInsecureSkipVerify)
	if opts.SSL != nil {
		connOpts = connOpts.WithSSL(*opts.SSL)
	}
	client, err := wsclientengine.NewWebsocketConnection(connOpts, nil, nil, logger, tracerProvider, opts.MeterProvider)
	if err != nil {
		return nil, err
	}
	w := &Waithook{
		path:       path,
		opts:       opts,
		logger:     logger.With(zap.String("path", path)),
		tracer:     tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		httpClient: httpClient,
		client:     client,
	}
	if opts.AutoConnect {
		if err := w.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// # Description
//
// Create a subscription with a filter. The subscription is connected unless it has already been
// started by New.
func Subscribe(ctx context.Context, path string, opts *WaithookOptions, filter Filter) (*Waithook, error) {
	if opts == nil {
		opts = NewWaithookOptions()
	}
	autoConnect := opts.AutoConnect
	opts.AutoConnect = false
	w, err := New(ctx, path, opts)
	opts.AutoConnect = autoConnect
	if err != nil {
		return nil, err
	}
	w.SetFilter(filter)
	if err := w.Connect(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// # Description
//
// Connect to the server, wait for the handshake and start the keepalive.
//
// # Returns
//
// ErrAlreadyStarted if Connect has already been called, the connection error otherwise. A
// subscription whose connection failed cannot be connected again.
func (w *Waithook) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.client.Connect(ctx); err != nil {
		return err
	}
	if err := w.client.WaitHandshake(ctx); err != nil {
		w.client.Close(context.Background(), false)
		return err
	}
	w.logger.Info("subscribed", zap.String("url", w.client.Target().String()))
	w.StartKeepalive(w.opts.KeepaliveInterval)
	return nil
}

// True once Connect has been called and until Close is called
func (w *Waithook) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Set the filter applied by WaitMessage. A nil filter accepts every webhook.
func (w *Waithook) SetFilter(filter Filter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filter = filter
}

// Webhooks accepted by WaitMessage so far, oldest first.
func (w *Waithook) Messages() []*Webhook {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Webhook(nil), w.messages...)
}

// Underlying websocket connection
func (w *Waithook) Client() *wsclientengine.WebsocketConnection {
	return w.client
}

// # Description
//
// Wait for the next webhook accepted by the filter. Webhooks rejected by the filter are
// consumed and dropped.
//
// # Inputs
//
//   - ctx: Context used to abort the wait
//   - opts: Wait options. NewWaitOptions() is used when nil.
//
// # Returns
//
//   - The webhook.
//   - nil, nil on timeout when opts.RaiseOnTimeout is false.
//   - TimeoutError on timeout when opts.RaiseOnTimeout is true.
//   - MessageDecodeError if a message is not a valid webhook.
//   - The connection terminal error once the connection stopped.
func (w *Waithook) WaitMessage(ctx context.Context, opts *WaitOptions) (*Webhook, error) {
	if opts == nil {
		opts = NewWaitOptions()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	for {
		msg, err := w.client.WaitMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				w.logger.Warn("timeout while waiting for a message",
					zap.Duration("elapsed", time.Since(start)), zap.Error(err))
				if !opts.RaiseOnTimeout {
					return nil, nil
				}
			}
			return nil, err
		}
		webhook, err := ParseWebhook(msg.Text())
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		filter := w.filter
		w.mu.Unlock()
		if filter != nil && !filter(webhook) {
			w.logger.Debug("webhook skipped by filter", zap.String("method", webhook.Method), zap.String("url", webhook.URL))
			continue
		}
		w.mu.Lock()
		w.messages = append(w.messages, webhook)
		w.mu.Unlock()
		return webhook, nil
	}
}

// # Description
//
// Wait for the next webhook and forward it to url.
//
// # Returns
//
//   - The forwarded webhook and the response whose body has been read and can be read again.
//   - nil, nil, nil on timeout when opts.RaiseOnTimeout is false.
//   - An error if waiting or forwarding failed.
func (w *Waithook) ForwardTo(ctx context.Context, url string, opts *WaitOptions) (*Webhook, *http.Response, error) {
	webhook, err := w.WaitMessage(ctx, opts)
	if err != nil || webhook == nil {
		return nil, nil, err
	}
	ctx, span := w.tracer.Start(ctx, spanForward, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	resp, err := webhook.sendTo(ctx, w.httpClient, span, url)
	if err != nil {
		w.logger.Error("failed to forward webhook", zap.String("target", url), zap.Error(err))
		return webhook, nil, err
	}
	w.logger.Info("webhook forwarded", zap.String("target", url), zap.Int("status", resp.StatusCode))
	return webhook, resp, nil
}

// # Description
//
// Start a keepalive which pings the server every interval until the connection stops. A
// running keepalive is replaced. An interval of 0 stops the keepalive.
func (w *Waithook) StartKeepalive(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopKeepalive != nil {
		w.stopKeepalive()
		w.stopKeepalive = nil
	}
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.stopKeepalive = cancel
	go wsclientengine.Keepalive(ctx, w.client, interval, w.logger)
}

// # Description
//
// Stop the keepalive and close the connection with a close frame.
//
// # Returns
//
// True if the connection has been closed by this call.
func (w *Waithook) Close(ctx context.Context) bool {
	w.mu.Lock()
	w.started = false
	if w.stopKeepalive != nil {
		w.stopKeepalive()
		w.stopKeepalive = nil
	}
	w.mu.Unlock()
	return w.client.Close(ctx, true)
}
