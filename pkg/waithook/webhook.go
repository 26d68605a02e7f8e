package waithook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request headers which are not copied when a webhook is forwarded. Keys are lower case.
var skippedHeaders = map[string]struct{}{
	"host":             {},
	"content-length":   {},
	"connection":       {},
	"accept-encoding":  {},
	"accept":           {},
	"content-encoding": {},
}

// Methods kept as is when a webhook is forwarded. Other methods are forwarded as POST.
var forwardedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodHead:   {},
	http.MethodDelete: {},
	"MOVE":            {},
	"COPY":            {},
}

// An HTTP request received by the waithook server and relayed to subscribers.
type Webhook struct {
	// Path and query of the received request
	URL string `json:"url"`
	// Request headers
	Headers map[string]string `json:"headers"`
	// Raw request body
	Body string `json:"body"`
	// Request method
	Method string `json:"method"`
	// Raw websocket message the webhook has been decoded from
	Message string `json:"-"`

	jsonOnce sync.Once
	jsonBody any
	jsonErr  error
}

// # Description
//
// Decode a raw message relayed by the waithook server.
//
// # Returns
//
// The decoded webhook or a MessageDecodeError.
func ParseWebhook(message string) (*Webhook, error) {
	webhook := &Webhook{}
	if err := json.Unmarshal([]byte(message), webhook); err != nil {
		return nil, MessageDecodeError{Message: message, Err: err}
	}
	webhook.Message = message
	return webhook, nil
}

// # Description
//
// Decode the webhook body as JSON. The body is decoded once, on first call.
//
// # Returns
//
// The decoded body (nil for an empty body) or the decoding error.
func (webhook *Webhook) JSONBody() (any, error) {
	webhook.jsonOnce.Do(func() {
		if webhook.Body == "" {
			return
		}
		webhook.jsonErr = json.Unmarshal([]byte(webhook.Body), &webhook.jsonBody)
	})
	return webhook.jsonBody, webhook.jsonErr
}

// Method used to forward the webhook.
func (webhook *Webhook) ForwardMethod() string {
	method := strings.ToUpper(webhook.Method)
	if _, ok := forwardedMethods[method]; ok {
		return method
	}
	return http.MethodPost
}

// # Description
//
// Build the HTTP request used to forward the webhook to url.
func (webhook *Webhook) NewForwardRequest(ctx context.Context, url string) (*http.Request, error) {
	var body io.Reader
	if webhook.Body != "" {
		body = bytes.NewBufferString(webhook.Body)
	}
	req, err := http.NewRequestWithContext(ctx, webhook.ForwardMethod(), url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range webhook.Headers {
		if _, skip := skippedHeaders[strings.ToLower(key)]; skip {
			continue
		}
		req.Header.Set(key, value)
	}
	return req, nil
}

// # Description
//
// Forward the webhook to url and read the whole response body.
//
// # Inputs
//
//   - ctx: Context used for tracing and cancellation
//   - client: HTTP client to use. http.DefaultClient is used when nil.
//   - url: Target URL
//
// # Returns
//
// The response, whose body has been read and can be read again, or an error.
func (webhook *Webhook) SendTo(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	return webhook.sendTo(ctx, client, trace.SpanFromContext(ctx), url)
}

func (webhook *Webhook) sendTo(ctx context.Context, client *http.Client, span trace.Span, url string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := webhook.NewForwardRequest(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build forward request")
		return nil, fmt.Errorf("failed to build forward request: %w", err)
	}
	span.SetAttributes(attribute.String(attrMethod, req.Method), attribute.String(attrUrl, url))
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward request failed")
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read forward response")
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	span.SetAttributes(attribute.Int(attrStatusCode, resp.StatusCode))
	return resp, nil
}
