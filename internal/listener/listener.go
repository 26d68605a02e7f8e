// Package listener implements the listen command: it prints every webhook relayed for a
// waithook path and optionally forwards them to a local HTTP endpoint.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/fatih/color"
	"github.com/gbdevw/gowaithook/pkg/waithook"
	"go.uber.org/zap"
)

// Listener settings
type Options struct {
	// Subscription target
	Target Target
	// Forward URL. Webhooks are not forwarded when empty.
	ForwardURL string
	// Disable colored output
	NoColor bool
}

// Prints relayed webhooks and forwards them
type Listener struct {
	opts       Options
	subscriber *waithook.Waithook
	httpClient *http.Client
	logger     *zap.Logger
	out        io.Writer
	// Serializes writes to out
	outMu sync.Mutex
	// Pending forwards
	forwards sync.WaitGroup

	info    *color.Color
	forward *color.Color
	status  *color.Color
	failure *color.Color
}

// # Description
//
// Factory - Build a listener which uses a non connected subscription.
//
// # Inputs
//
//   - opts: Listener settings
//   - subscriber: Subscription created without auto connect
//   - httpClient: Client used to forward webhooks. http.DefaultClient is used when nil.
//   - out: Output. Writes are serialized.
//   - logger: Logger. Logs are discarded when nil.
func NewListener(opts Options, subscriber *waithook.Waithook, httpClient *http.Client, out io.Writer, logger *zap.Logger) *Listener {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Listener{
		opts:       opts,
		subscriber: subscriber,
		httpClient: httpClient,
		logger:     logger,
		out:        out,
		info:       color.New(color.FgGreen),
		forward:    color.New(color.FgYellow),
		status:     color.New(color.Bold),
		failure:    color.New(color.FgRed),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{l.info, l.forward, l.status, l.failure} {
			c.DisableColor()
		}
	}
	return l
}

// # Description
//
// Connect the subscription and print webhooks until ctx is done or the connection stops. Pending
// forwards are awaited before returning.
//
// # Returns
//
// Nil when ctx has been canceled, the connection error otherwise.
func (l *Listener) Run(ctx context.Context) error {
	defer l.forwards.Wait()
	l.println(l.info, fmt.Sprintf("Connecting to %s", l.opts.Target))
	if err := l.subscriber.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", l.opts.Target, err)
	}
	defer l.subscriber.Close(context.Background())
	l.println(l.info, "Connected! Waiting to for message...")
	for {
		webhook, err := l.subscriber.WaitMessage(ctx, waithook.NewWaitOptions())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var decodeErr waithook.MessageDecodeError
			if errors.As(err, &decodeErr) {
				l.logger.Warn("skipping message which is not a webhook", zap.Error(err))
				l.println(nil, decodeErr.Message)
				continue
			}
			return err
		}
		l.println(nil, webhook.Message)
		if l.opts.ForwardURL != "" {
			l.forwards.Add(1)
			go func() {
				defer l.forwards.Done()
				l.Forward(ctx, webhook)
			}()
		}
	}
}

// # Description
//
// Forward a webhook to the forward URL and print the response status or the error.
func (l *Listener) Forward(ctx context.Context, webhook *waithook.Webhook) {
	l.println(l.forward, fmt.Sprintf("Sending as HTTP to %s", l.opts.ForwardURL))
	resp, err := webhook.SendTo(ctx, l.httpClient, l.opts.ForwardURL)
	if err != nil {
		l.logger.Error("failed to forward webhook", zap.String("target", l.opts.ForwardURL), zap.Error(err))
		l.println(l.failure, fmt.Sprintf("Error: %v", err))
		return
	}
	l.println(l.status, resp.Status)
}

func (l *Listener) println(c *color.Color, line string) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	if c == nil {
		fmt.Fprintln(l.out, line)
		return
	}
	c.Fprintln(l.out, line)
}
