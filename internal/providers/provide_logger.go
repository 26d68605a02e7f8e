package providers

import (
	"os"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"github.com/gbdevw/gowaithook/pkg/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Provide a logger writing to stderr: trace level when verbose, warn level otherwise.
func ProvideLogger(config configuration.Configuration) *zap.Logger {
	level := zapcore.WarnLevel
	if config.Verbose {
		level = logging.TraceLevel
	}
	return logging.NewLogger(os.Stderr, level, "waithook")
}
