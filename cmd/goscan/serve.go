package main

import (
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-scan/controller"
	"github.com/Redundancy/go-scan/digest"
	"github.com/Redundancy/go-scan/telemetry"
	"github.com/Redundancy/go-scan/transport/natsbus"
)

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:  "serve",
			Usage: "accept scan requests over NATS",
			Description: `Connects to the configured NATS server and handles JSON requests published on <subject>.requests,
publishing events on <subject>.events, until interrupted.`,
			Action: Serve,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "nats-url",
					Usage: "NATS server (default from config)",
				},
				&cli.StringFlag{
					Name:  "subject",
					Usage: "subject prefix (default from config)",
				},
			},
		},
	)
}

// Serve requests until the process is interrupted
func Serve(c *cli.Context) error {
	url := settings.NATSURL
	if c.IsSet("nats-url") {
		url = c.String("nats-url")
	}

	subject := settings.NATSSubject
	if c.IsSet("subject") {
		subject = c.String("subject")
	}

	conn, err := nats.Connect(url, nats.Name(app.Name))
	if err != nil {
		return errors.Wrapf(err, "connecting to %v", url)
	}
	defer conn.Close()

	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		return err
	}

	registry := digest.NewRegistry(logger)
	defer registry.Close()

	bus := natsbus.New(conn, subject, logger)
	ctrl := controller.New(registry, bus,
		controller.WithLogger(logger),
		controller.WithPreferAccelerated(settings.PreferAccelerated),
		controller.WithChunkSizes(settings.SearchChunkSize, settings.DigestChunkSize),
		controller.WithReadAhead(settings.ReadAhead),
		controller.WithOpener(controller.HTTPOpener(httpClient())),
		controller.WithInstruments(instruments),
	)
	defer ctrl.Close()

	if err := bus.Serve(ctrl); err != nil {
		return err
	}
	defer bus.Close()

	logger.Info("serving", "url", url, "subject", subject)
	<-c.Context.Done()
	logger.Info("shutting down")

	return nil
}
