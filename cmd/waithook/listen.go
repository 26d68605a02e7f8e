package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"github.com/gbdevw/gowaithook/internal/providers"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

const (
	forwardFlag   = "forward"
	verboseFlag   = "verbose"
	keepaliveFlag = "keepalive"
	insecureFlag  = "insecure"
	noColorFlag   = "no-color"

	// Maximum duration of the application start and stop
	lifecycleTimeout = 30 * time.Second
)

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:      "listen",
		Usage:     "Subscribe to a waithook path and print received webhooks",
		ArgsUsage: "url",
		Description: strings.Join([]string{
			"Example: waithook listen waithook.herokuapp.com/my-path --forward localhost:3000/hook",
			"wss:// is assumed when the scheme is omitted.",
		}, "\n"),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return fmt.Errorf("must provide exactly one argument, got %d (%s)", args.Len(), strings.Join(args.Slice(), ", "))
			}
			return runListen(ctx, configuration.ListenArguments{
				URL:               args.Get(0),
				Forward:           cmd.String(forwardFlag),
				Verbose:           cmd.Bool(verboseFlag),
				KeepaliveInterval: cmd.Duration(keepaliveFlag),
				Insecure:          cmd.Bool(insecureFlag),
				NoColor:           cmd.Bool(noColorFlag),
			})
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    forwardFlag,
				Aliases: []string{"f"},
				Usage:   "Forward each webhook to this URL, http:// is assumed when the scheme is omitted",
			},
			&cli.BoolFlag{
				Name:    verboseFlag,
				Aliases: []string{"v"},
				Usage:   "Log websocket traffic",
			},
			&cli.DurationFlag{
				Name:  keepaliveFlag,
				Usage: "Interval between keepalive pings, 0 disables keepalive",
				Value: 60 * time.Second,
			},
			&cli.BoolFlag{
				Name:  insecureFlag,
				Usage: "Do not verify the server certificate",
			},
			&cli.BoolFlag{
				Name:  noColorFlag,
				Usage: "Disable colored output",
			},
		},
	}
}

// Start the listen application and block until the listener stops or a signal is received.
func runListen(ctx context.Context, args configuration.ListenArguments) error {
	var service *providers.ListenerService
	app := fx.New(
		providers.ListenApplication(ctx, args),
		fx.Populate(&service),
	)
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancelStart := context.WithTimeout(ctx, lifecycleTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	<-app.Done()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	return service.Err()
}
