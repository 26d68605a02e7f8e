package waithook

import (
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Default waithook server host
const DefaultHost = "waithook.herokuapp.com"

// Default waithook server port
const DefaultPort = 443

// Defines configuration options for a Waithook instance.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WaithookOptions struct {
	// Waithook server host. Defaults to waithook.herokuapp.com.
	Host string `validate:"required"`
	// Waithook server port. Defaults to 443, which implies TLS unless SSL is set.
	Port int `validate:"gte=1,lte=65535"`
	// Forces TLS on or off. When nil, TLS is used only with port 443.
	SSL *bool
	// Minimum TLS version. 0 means crypto/tls default.
	TLSMinVersion uint16 `validate:"omitempty,gte=769,lte=772"`
	// Disable server certificate verification.
	TLSInsecureSkipVerify bool
	// Connect when the instance is created. Defaults to true.
	AutoConnect bool
	// Interval between keepalive pings. Defaults to 60s, 0 disables keepalive.
	KeepaliveInterval time.Duration `validate:"gte=0"`
	// Logger to use. When nil, a logger writing to LogOutput is built.
	Logger *zap.Logger
	// Log level used when Logger is nil: trace, debug, info, warn, error or fatal.
	// Defaults to info.
	LogLevel string
	// Destination of logs when Logger is nil. Logs are discarded when nil.
	LogOutput io.Writer
	// HTTP client used to forward webhooks. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Tracer provider. Global provider is used when nil.
	TracerProvider trace.TracerProvider
	// Meter provider. Global provider is used when nil.
	MeterProvider metric.MeterProvider
}

// # Description
//
// Factory which creates a new WaithookOptions object with nice defaults.
//
// # Default settings
//
//   - Host = waithook.herokuapp.com, Port = 443 (TLS).
//   - AutoConnect = true.
//   - KeepaliveInterval = 60s.
//   - LogLevel = info, logs discarded.
func NewWaithookOptions() *WaithookOptions {
	return &WaithookOptions{
		Host:              DefaultHost,
		Port:              DefaultPort,
		AutoConnect:       true,
		KeepaliveInterval: 60 * time.Second,
		LogLevel:          "info",
	}
}

// Set opts.Host and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithHost(value string) *WaithookOptions {
	opts.Host = value
	return opts
}

// Set opts.Port and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithPort(value int) *WaithookOptions {
	opts.Port = value
	return opts
}

// Set opts.SSL and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithSSL(value bool) *WaithookOptions {
	opts.SSL = &value
	return opts
}

// Set opts.TLSMinVersion and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithTLSMinVersion(value uint16) *WaithookOptions {
	opts.TLSMinVersion = value
	return opts
}

// Set opts.TLSInsecureSkipVerify and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithTLSInsecureSkipVerify(value bool) *WaithookOptions {
	opts.TLSInsecureSkipVerify = value
	return opts
}

// Set opts.AutoConnect and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithAutoConnect(value bool) *WaithookOptions {
	opts.AutoConnect = value
	return opts
}

// Set opts.KeepaliveInterval and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithKeepaliveInterval(value time.Duration) *WaithookOptions {
	opts.KeepaliveInterval = value
	return opts
}

// Set opts.Logger and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithLogger(value *zap.Logger) *WaithookOptions {
	opts.Logger = value
	return opts
}

// Set opts.LogLevel and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithLogLevel(value string) *WaithookOptions {
	opts.LogLevel = value
	return opts
}

// Set opts.LogOutput and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithLogOutput(value io.Writer) *WaithookOptions {
	opts.LogOutput = value
	return opts
}

// Set opts.HTTPClient and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithHTTPClient(value *http.Client) *WaithookOptions {
	opts.HTTPClient = value
	return opts
}

// Set opts.TracerProvider and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithTracerProvider(value trace.TracerProvider) *WaithookOptions {
	opts.TracerProvider = value
	return opts
}

// Set opts.MeterProvider and return the modified object. Method does not validate inputs.
func (opts *WaithookOptions) WithMeterProvider(value metric.MeterProvider) *WaithookOptions {
	opts.MeterProvider = value
	return opts
}

// # Description
//
// Helper function which validates WaithookOptions.
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *WaithookOptions) error {
	return validator.New().Struct(opts)
}

// Options of WaitMessage and ForwardTo
type WaitOptions struct {
	// Maximum wait duration. 0 means no timeout.
	Timeout time.Duration
	// When false, a timeout returns a nil webhook and a nil error.
	RaiseOnTimeout bool
}

// Factory which returns wait options without timeout which raise on timeout.
func NewWaitOptions() *WaitOptions {
	return &WaitOptions{RaiseOnTimeout: true}
}

// Set opts.Timeout and return the modified object.
func (opts *WaitOptions) WithTimeout(value time.Duration) *WaitOptions {
	opts.Timeout = value
	return opts
}

// Set opts.RaiseOnTimeout and return the modified object.
func (opts *WaitOptions) WithRaiseOnTimeout(value bool) *WaitOptions {
	opts.RaiseOnTimeout = value
	return opts
}
