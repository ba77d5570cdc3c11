/*
goscan is a command-line front end for the goscan package: it finds byte patterns in large files or URLs,
computes their digests, and can serve the same operations to other processes over NATS.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-scan/config"
	"github.com/Redundancy/go-scan/telemetry"
)

var app = &cli.App{
	Name:  "goscan",
	Usage: "Search and hash large files and URLs a chunk at a time",
}

// settings and logger are set up in app.Before for every command
var (
	settings *config.Config
	logger   hclog.Logger
	shutdown telemetry.ShutdownFunc
)

func main() {
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (default $HOME/.goscan.yaml)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log level",
		},
	}

	app.Before = func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		if level := c.String("log-level"); level != "" {
			cfg.LogLevel = level
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		settings = cfg
		logger = cfg.Logger(app.Name)

		if cfg.File != "" {
			logger.Debug("using config file", "path", cfg.File)
		}

		shutdown = telemetry.Init(c.Context, telemetry.Config{
			Endpoint:    cfg.OTelEndpoint,
			ServiceName: app.Name,
		}, logger)

		return nil
	}

	app.After = func(c *cli.Context) error {
		if shutdown != nil {
			return shutdown(context.Background())
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}
