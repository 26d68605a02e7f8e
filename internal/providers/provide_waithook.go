package providers

import (
	"context"
	"crypto/tls"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"github.com/gbdevw/gowaithook/pkg/waithook"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Provide a non connected subscription to the configured target.
func ProvideWaithook(ctx context.Context, config configuration.Configuration, logger *zap.Logger, tracerProvider trace.TracerProvider) (*waithook.Waithook, error) {
	opts := waithook.NewWaithookOptions().
		WithHost(config.Target.Host).
		WithPort(config.Target.Port).
		WithSSL(config.Target.TLS).
		WithTLSMinVersion(tls.VersionTLS12).
		WithTLSInsecureSkipVerify(config.Insecure).
		WithAutoConnect(false).
		WithKeepaliveInterval(config.KeepaliveInterval).
		WithLogger(logger).
		WithTracerProvider(tracerProvider)
	return waithook.New(ctx, config.Target.Path, opts)
}
