// Package logging builds the zap loggers used across the module and adds a trace level below
// debug, used to dump raw handshake and frame traffic.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log level below zapcore.DebugLevel used to log raw protocol traffic.
const TraceLevel = zapcore.DebugLevel - 1

// # Description
//
// Parse a log level name. Accepted names are trace, debug, info, warn, error and fatal. Names
// are case insensitive.
//
// # Returns
//
// The parsed level or an error if the name is unknown.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %q", name)
	}
}

// # Description
//
// Build a console logger which writes to output and drops entries below level.
//
// # Inputs
//
//   - output: Destination of log entries. Discarded if nil.
//   - level: Minimum enabled level. Use TraceLevel to enable trace entries.
//   - name: Logger name. Ignored if empty.
func NewLogger(output io.Writer, level zapcore.Level, name string) *zap.Logger {
	if output == nil {
		output = io.Discard
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = encodeLevel
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(output)),
		zap.NewAtomicLevelAt(level),
	)
	logger := zap.New(core)
	if name != "" {
		logger = logger.Named(name)
	}
	return logger
}

// # Description
//
// Log a message at TraceLevel. The call is a no-op when the level is not enabled.
func Trace(logger *zap.Logger, msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	if ce := logger.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Capital level encoder which knows about TraceLevel
func encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(level, enc)
}
