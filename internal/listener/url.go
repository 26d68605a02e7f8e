package listener

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gbdevw/gowaithook/pkg/wsclientengine"
)

// Subscription target parsed from the listen argument
type Target struct {
	// Server host
	Host string
	// Server port
	Port int
	// Subscribed path, without leading "/"
	Path string
	// True for wss URLs
	TLS bool
}

// Websocket URL of the target
func (t Target) String() string {
	return wsclientengine.HandshakeURL(t.Host, t.Port, t.Path, t.TLS).String()
}

// # Description
//
// Parse the listen argument. wss:// is assumed when the scheme is missing. Port defaults to 443
// for wss and 80 for ws.
//
// # Returns
//
// The parsed target or an error if the argument is not a valid ws or wss URL.
func ParseTarget(raw string) (Target, error) {
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	target := Target{Host: parsed.Hostname()}
	switch parsed.Scheme {
	case "wss":
		target.TLS = true
		target.Port = 443
	case "ws":
		target.Port = 80
	default:
		return Target{}, fmt.Errorf("invalid url %q: scheme must be ws or wss", raw)
	}
	if target.Host == "" {
		return Target{}, fmt.Errorf("invalid url %q: missing host", raw)
	}
	if port := parsed.Port(); port != "" {
		target.Port, err = strconv.Atoi(port)
		if err != nil {
			return Target{}, fmt.Errorf("invalid url %q: %w", raw, err)
		}
	}
	target.Path = strings.TrimPrefix(parsed.Path, "/")
	if parsed.RawQuery != "" {
		target.Path += "?" + parsed.RawQuery
	}
	return target, nil
}

// # Description
//
// Parse the forward URL. http:// is assumed when the scheme is missing.
func ParseForwardURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid forward url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid forward url %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid forward url %q: missing host", raw)
	}
	return parsed.String(), nil
}
