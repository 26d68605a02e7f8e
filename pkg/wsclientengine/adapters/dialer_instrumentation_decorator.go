package adapters

import (
	"context"
	"crypto/tls"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// A decorator which can be used to automatically instrument implementations of DialerInterface.
type DialerInstrumentationDecorator struct {
	// Decorated DialerInterface implementation
	decorated DialerInterface
	// Tracer used for instrumentation
	tracer trace.Tracer
}

// # Description
//
// Create a new decorator which will automatically instrument the provided implementation of
// DialerInterface. The global tracer provider is used when tracerProvider is nil.
func NewDialerInstrumentationDecorator(
	decorated DialerInterface,
	tracerProvider trace.TracerProvider,
) *DialerInstrumentationDecorator {
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &DialerInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
}

// Decorate and instrument the Open method of a DialerInterface implementation.
func (decorator *DialerInstrumentationDecorator) Open(ctx context.Context, host string, port int, tlsConfig *tls.Config) (net.Conn, error) {
	// Start span
	ctx, span := decorator.tracer.Start(ctx, spanOpen,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrHost, host),
			attribute.Int(attrPort, port),
			attribute.Bool(attrTLS, tlsConfig != nil),
		))
	defer span.End()
	// Call decorated Open method
	conn, err := decorator.decorated.Open(ctx, host, port, tlsConfig)
	if err != nil {
		// Trace error
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return nil, err
	}
	if conn != nil && conn.LocalAddr() != nil {
		span.SetAttributes(attribute.String(attrLocalAddr, conn.LocalAddr().String()))
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return conn, nil
}
