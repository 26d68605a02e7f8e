package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "waithook",
		Usage: "Receive webhooks relayed by a waithook server",
		Commands: []*cli.Command{
			listenCommand(),
			versionCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "[!] Error: %s\n", err)
		os.Exit(1)
	}
}
