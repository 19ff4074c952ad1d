package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hookdeck/cbserver/internal/app"
	"github.com/hookdeck/cbserver/internal/config"
	"github.com/hookdeck/cbserver/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "cbserver",
		Usage:   "Callback dispatch server",
		Version: version.Version(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the server until it is shut down",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to config file",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Log level (debug, info, warn, error)",
					},
					&cli.IntFlag{
						Name:  "api-port",
						Usage: "Port for the HTTP API (overrides config)",
					},
				},
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(version.Version())
					return nil
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Parse(config.Flags{
		Config:   c.String("config"),
		LogLevel: c.String("log-level"),
		APIPort:  int(c.Int("api-port")),
	})
	if err != nil {
		return err
	}
	return app.New(cfg).Run(ctx)
}
