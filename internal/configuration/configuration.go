// Package configuration gathers the settings of the waithook command from its arguments and from
// the environment.
package configuration

import (
	"os"
	"time"

	"github.com/gbdevw/gowaithook/internal/listener"
)

// Arguments and flags of the listen command
type ListenArguments struct {
	// Raw subscription URL
	URL string
	// Raw forward URL, can be empty
	Forward string
	// Enable trace logging
	Verbose bool
	// Keepalive interval
	KeepaliveInterval time.Duration
	// Disable server certificate verification
	Insecure bool
	// Disable colored output
	NoColor bool
}

type Configuration struct {
	// Subscription target
	Target listener.Target
	// Normalized forward URL, empty when forwarding is disabled
	ForwardURL string
	// Enable trace logging
	Verbose bool
	// Keepalive interval
	KeepaliveInterval time.Duration
	// Disable server certificate verification
	Insecure bool
	// Disable colored output
	NoColor bool
	// Indicates whether tracing is enabled or not
	TracingEnabled string
	// URL of the OTLP HTTP tracing backend
	TracingEndpoint string
}

// # Description
//
// Build the configuration from the listen arguments and the WAITHOOK_TRACING_ENABLED and
// WAITHOOK_TRACING_ENDPOINT environment variables.
//
// # Returns
//
// The configuration or an error if an URL is invalid.
func LoadConfiguration(args ListenArguments) (Configuration, error) {
	target, err := listener.ParseTarget(args.URL)
	if err != nil {
		return Configuration{}, err
	}
	forward := ""
	if args.Forward != "" {
		forward, err = listener.ParseForwardURL(args.Forward)
		if err != nil {
			return Configuration{}, err
		}
	}
	return Configuration{
		Target:            target,
		ForwardURL:        forward,
		Verbose:           args.Verbose,
		KeepaliveInterval: args.KeepaliveInterval,
		Insecure:          args.Insecure,
		NoColor:           args.NoColor,
		TracingEnabled:    os.Getenv("WAITHOOK_TRACING_ENABLED"),
		TracingEndpoint:   os.Getenv("WAITHOOK_TRACING_ENDPOINT"),
	}, nil
}
