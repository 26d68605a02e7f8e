package providers

import (
	"context"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// # Description
//
// Return the fx options of the listen application.
//
// # Inputs
//
//   - ctx: Application context, used to build the tracer provider and the subscription
//   - args: Arguments of the listen command
func ListenApplication(ctx context.Context, args configuration.ListenArguments) fx.Option {
	return fx.Options(
		fx.Supply(args),
		fx.Provide(func() context.Context { return ctx }),
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(ProvideLogger),
		fx.Provide(ProvideTracerProvider),
		fx.Provide(ProvideWaithook),
		fx.Provide(ProvideListener),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)
}
