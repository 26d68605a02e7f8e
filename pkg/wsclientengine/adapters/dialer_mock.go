package adapters

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/stretchr/testify/mock"
)

// Mock for DialerInterface
type DialerInterfaceMock struct {
	mock.Mock
}

// Factory
func NewDialerInterfaceMock() *DialerInterfaceMock {
	return &DialerInterfaceMock{
		Mock: mock.Mock{},
	}
}

// # Description
//
// Open an ordered byte stream to host:port. When tlsConfig is not nil, the stream MUST be
// encrypted and the TLS handshake MUST be completed before Open returns.
//
// # Inputs
//
//   - ctx: Context used for tracing/timeout purpose
//   - host: Target host (name or IP)
//   - port: Target port
//   - tlsConfig: TLS configuration to use. Nil means plaintext TCP.
//
// # Returns
//
// The opened byte stream or an error if any.
func (mock *DialerInterfaceMock) Open(ctx context.Context, host string, port int, tlsConfig *tls.Config) (net.Conn, error) {
	args := mock.Called(ctx, host, port, tlsConfig)
	conn, _ := args.Get(0).(net.Conn)
	return conn, args.Error(1)
}
