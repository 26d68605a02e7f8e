// Package which contains a DialerInterface implementation based on net.Dialer and tls.Dialer.
package netdial

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// Dialer which opens plaintext TCP or TLS byte streams
type NetDialer struct {
	// Timeout applied to TCP connect and TLS handshake. Zero means no timeout besides ctx.
	timeout time.Duration
	// TCP keepalive period. Zero means default, negative disables TCP keepalives.
	keepAlive time.Duration
}

// # Description
//
// Factory which creates a new NetDialer.
//
// # Inputs
//
//   - timeout: Timeout applied when opening the stream. Zero means no timeout besides the one
//     set on the context provided to Open.
//   - keepAlive: TCP keepalive period. Zero means OS default, a negative value disables it.
func NewNetDialer(timeout time.Duration, keepAlive time.Duration) *NetDialer {
	return &NetDialer{timeout: timeout, keepAlive: keepAlive}
}

// # Description
//
// Open an ordered byte stream to host:port. The TLS handshake is completed before Open returns
// when tlsConfig is not nil. ServerName defaults to host when not set in tlsConfig.
func (d *NetDialer) Open(ctx context.Context, host string, port int, tlsConfig *tls.Config) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: d.timeout, KeepAlive: d.keepAlive}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	if tlsConfig == nil {
		return netDialer.DialContext(ctx, "tcp", address)
	}
	cfg := tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: cfg}
	return tlsDialer.DialContext(ctx, "tcp", address)
}
