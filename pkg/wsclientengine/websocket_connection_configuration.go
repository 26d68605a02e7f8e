package wsclientengine

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defines configuration options for a websocket connection.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WebsocketConnectionConfigurationOptions struct {
	// Target server host (name or IP).
	//
	// Defaults to localhost. Must not be empty.
	Host string `validate:"required"`
	// Target server port.
	//
	// Defaults to 80. Must be between 1 and 65535.
	Port int `validate:"gte=1,lte=65535"`
	// Path requested in the opening handshake. A leading '/' is optional.
	//
	// Defaults to an empty path.
	Path string
	// Forces TLS on (true) or off (false). When nil, TLS is used only if Port is 443.
	//
	// Defaults to nil.
	SSL *bool
	// Minimum TLS version accepted (tls.VersionTLS12, ...). 0 means crypto/tls default.
	//
	// Defaults to 0.
	TLSMinVersion uint16 `validate:"omitempty,gte=769,lte=772"`
	// Disable server certificate verification.
	//
	// Defaults to false.
	TLSInsecureSkipVerify bool
	// Size of the buffer used to read from the transport (bytes).
	//
	// Defaults to 4096. Must be at least 1.
	ReadBufferSize int `validate:"gte=1"`
	// Maximum size of a handshake response (bytes).
	//
	// Defaults to 65536. Must be at least 1.
	MaxHandshakeSize int `validate:"gte=1"`
	// Delay to open the transport (milliseconds).
	//
	// Defaults to 30000 - 0 disables the timeout.
	DialTimeoutMs int64 `validate:"gte=0"`
	// Delay to write a frame to the transport (milliseconds).
	//
	// Defaults to 10000 - 0 disables the timeout.
	WriteTimeoutMs int64 `validate:"gte=0"`
	// Delay Close waits for the background reader to exit (milliseconds).
	//
	// Defaults to 5000 - 0 disables the timeout.
	CloseTimeoutMs int64 `validate:"gte=0"`
}

// # Description
//
// Set opts.Host and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithHost(value string) *WebsocketConnectionConfigurationOptions {
	opts.Host = value
	return opts
}

// # Description
//
// Set opts.Port and return the modified object. Method does not validate inputs.
//
// # Port
//
// Port 443 implies TLS unless SSL is explicitly set.
func (opts *WebsocketConnectionConfigurationOptions) WithPort(value int) *WebsocketConnectionConfigurationOptions {
	opts.Port = value
	return opts
}

// # Description
//
// Set opts.Path and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithPath(value string) *WebsocketConnectionConfigurationOptions {
	opts.Path = value
	return opts
}

// # Description
//
// Set opts.SSL and return the modified object. Method does not validate inputs.
//
// # SSL
//
// This option forces TLS on or off regardless of the port.
func (opts *WebsocketConnectionConfigurationOptions) WithSSL(value bool) *WebsocketConnectionConfigurationOptions {
	opts.SSL = &value
	return opts
}

// # Description
//
// Set opts.TLSMinVersion and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithTLSMinVersion(value uint16) *WebsocketConnectionConfigurationOptions {
	opts.TLSMinVersion = value
	return opts
}

// # Description
//
// Set opts.TLSInsecureSkipVerify and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithTLSInsecureSkipVerify(value bool) *WebsocketConnectionConfigurationOptions {
	opts.TLSInsecureSkipVerify = value
	return opts
}

// # Description
//
// Set opts.ReadBufferSize and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithReadBufferSize(value int) *WebsocketConnectionConfigurationOptions {
	opts.ReadBufferSize = value
	return opts
}

// # Description
//
// Set opts.MaxHandshakeSize and return the modified object. Method does not validate inputs.
func (opts *WebsocketConnectionConfigurationOptions) WithMaxHandshakeSize(value int) *WebsocketConnectionConfigurationOptions {
	opts.MaxHandshakeSize = value
	return opts
}

// # Description
//
// Set opts.DialTimeoutMs and return the modified object. Method does not validate inputs.
//
// # DialTimeoutMs
//
// This option defines the maximum delay (milliseconds) to open the transport, TLS handshake
// included. A value of 0 disables the timeout.
func (opts *WebsocketConnectionConfigurationOptions) WithDialTimeoutMs(value int64) *WebsocketConnectionConfigurationOptions {
	opts.DialTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.WriteTimeoutMs and return the modified object. Method does not validate inputs.
//
// # WriteTimeoutMs
//
// This option defines the write deadline (milliseconds) applied each time a frame is written.
// A value of 0 disables the timeout.
func (opts *WebsocketConnectionConfigurationOptions) WithWriteTimeoutMs(value int64) *WebsocketConnectionConfigurationOptions {
	opts.WriteTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.CloseTimeoutMs and return the modified object. Method does not validate inputs.
//
// # CloseTimeoutMs
//
// This option defines how long Close waits (milliseconds) for the background reader to exit
// once the transport has been closed. A value of 0 disables the timeout.
func (opts *WebsocketConnectionConfigurationOptions) WithCloseTimeoutMs(value int64) *WebsocketConnectionConfigurationOptions {
	opts.CloseTimeoutMs = value
	return opts
}

// # Description
//
// Return true if the connection must use TLS: SSL if set, otherwise Port == 443.
func (opts *WebsocketConnectionConfigurationOptions) UseTLS() bool {
	if opts.SSL != nil {
		return *opts.SSL
	}
	return opts.Port == 443
}

// # Description
//
// Build the TLS configuration to use or nil when TLS is not used.
func (opts *WebsocketConnectionConfigurationOptions) TLSConfig() *tls.Config {
	if !opts.UseTLS() {
		return nil
	}
	return &tls.Config{
		ServerName:         opts.Host,
		MinVersion:         opts.TLSMinVersion,
		InsecureSkipVerify: opts.TLSInsecureSkipVerify,
	}
}

// # Description
//
// Factory which creates a new WebsocketConnectionConfigurationOptions object with nice defaults.
// Settings can then be modified by the user by using With*** methods.
//
// # Default settings
//
//   - Host = localhost, Port = 80, empty path, TLS chosen by port.
//   - ReadBufferSize = 4096 bytes, MaxHandshakeSize = 65536 bytes.
//   - DialTimeoutMs = 30000 (30 seconds).
//   - WriteTimeoutMs = 10000 (10 seconds).
//   - CloseTimeoutMs = 5000 (5 seconds).
func NewWebsocketConnectionConfigurationOptions() *WebsocketConnectionConfigurationOptions {
	return &WebsocketConnectionConfigurationOptions{
		Host:             "localhost",
		Port:             80,
		ReadBufferSize:   4096,
		MaxHandshakeSize: 65536,
		DialTimeoutMs:    30000,
		WriteTimeoutMs:   10000,
		CloseTimeoutMs:   5000,
	}
}

// # Description
//
// Helper function which validates WebsocketConnectionConfigurationOptions. Options are valid if:
//   - opts is not nil
//   - opts.Host is not empty
//   - opts.Port is between 1 and 65535
//   - opts.TLSMinVersion is 0 or a known TLS version
//   - opts.ReadBufferSize and opts.MaxHandshakeSize are greater or equal to 1
//   - opts.DialTimeoutMs, opts.WriteTimeoutMs and opts.CloseTimeoutMs are greater or equal to 0
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
// You will need to assert the error if it's not nil eg. err.(validator.ValidationErrors) to access
// the array of errors.
func Validate(opts *WebsocketConnectionConfigurationOptions) error {
	return validator.New().Struct(opts)
}

// # Description
//
// Build the URL targeted by the opening handshake: ws://host/path or wss://host/path when
// useTLS is true. The port is part of the URL only when it is not the default port of the
// scheme. A leading '/' in path is optional.
func HandshakeURL(host string, port int, path string, useTLS bool) *url.URL {
	scheme, defaultPort := "ws", 80
	if useTLS {
		scheme, defaultPort = "wss", 443
	}
	hostPort := host
	if port != defaultPort {
		hostPort = net.JoinHostPort(host, strconv.Itoa(port))
	} else if strings.Contains(host, ":") {
		// IPv6 literal
		hostPort = "[" + host + "]"
	}
	target := &url.URL{Scheme: scheme, Host: hostPort, Path: "/" + strings.TrimPrefix(path, "/")}
	// Keep an eventual query string
	if idx := strings.Index(target.Path, "?"); idx >= 0 {
		target.RawQuery = target.Path[idx+1:]
		target.Path = target.Path[:idx]
	}
	return target
}
