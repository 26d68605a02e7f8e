package adapters

import (
	"context"
	"crypto/tls"
	"net"
)

// Interface which describes the byte stream transport the connection state machine expects.
//
// The returned net.Conn is owned by the caller. The connection state machine relies on the
// following net.Conn behaviours:
//   - Close MUST unblock a pending Read with an error.
//   - Read and Write MAY be called concurrently from two different goroutines.
type DialerInterface interface {
	// # Description
	//
	// Open an ordered byte stream to host:port. When tlsConfig is not nil, the stream MUST be
	// encrypted and the TLS handshake MUST be completed before Open returns.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing/timeout purpose
	//	- host: Target host (name or IP)
	//	- port: Target port
	//	- tlsConfig: TLS configuration to use. Nil means plaintext TCP.
	//
	// # Returns
	//
	// The opened byte stream or an error if any.
	Open(ctx context.Context, host string, port int, tlsConfig *tls.Config) (net.Conn, error)
}
