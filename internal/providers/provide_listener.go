package providers

import (
	"context"
	"os"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"github.com/gbdevw/gowaithook/internal/listener"
	"github.com/gbdevw/gowaithook/pkg/waithook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Runs the listener in the background for the application lifetime
type ListenerService struct {
	listener *listener.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// Error returned by the listener. Valid once the application stopped.
func (s *ListenerService) Err() error {
	return s.err
}

// Provide the listener service and register hooks which start and stop it. The application is
// shut down when the listener stops on its own.
func ProvideListener(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	config configuration.Configuration,
	subscriber *waithook.Waithook,
	logger *zap.Logger) *ListenerService {

	service := &ListenerService{
		listener: listener.NewListener(listener.Options{
			Target:     config.Target,
			ForwardURL: config.ForwardURL,
			NoColor:    config.NoColor,
		}, subscriber, nil, os.Stdout, logger),
		done: make(chan struct{}),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, service.cancel = context.WithCancel(context.Background())
			go func() {
				defer close(service.done)
				service.err = service.listener.Run(runCtx)
				if err := shutdowner.Shutdown(); err != nil {
					logger.Debug("failed to request shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			service.cancel()
			select {
			case <-service.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return service
}
