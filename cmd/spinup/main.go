package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/spinup-sh/spinup/internal/provider"
)

func main() {
	app := &cli.App{
		Name:  "spinup",
		Usage: "Launch an ephemeral cloud machine, run commands on it, and tear it down",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "Nimbus API base URL",
				Value: provider.DefaultBaseURL,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "launch",
				Usage: "Create a machine, wait for it, run setup, and attach (main command)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Machine name (bypasses the interactive prompt)",
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "Placement region (bypasses the interactive prompt)",
					},
					&cli.StringFlag{
						Name:  "size",
						Usage: "Size tier: small, medium, large (bypasses the interactive prompt)",
					},
					&cli.StringFlag{
						Name:  "image",
						Usage: "Base image",
						Value: provider.DefaultImage,
					},
					&cli.IntFlag{
						Name:  "volume-gb",
						Usage: "Attached volume size in GB (0 = no volume)",
					},
					&cli.StringSliceFlag{
						Name:  "env",
						Usage: "Environment variable to inject, KEY=VALUE or bare KEY to copy from the local environment (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "setup",
						Usage: "Setup command to run on the machine before attaching (repeatable)",
					},
					&cli.IntFlag{
						Name:  "setup-timeout",
						Usage: "Per-setup-command time limit in seconds",
						Value: 600,
					},
					&cli.BoolFlag{
						Name:  "no-attach",
						Usage: "Skip the interactive session after setup",
					},
				},
				Action: launchCommand,
			},
			{
				Name:      "run",
				Usage:     "Run one command on the most recently launched machine",
				ArgsUsage: "COMMAND [ARG...]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "timeout",
						Usage: "Time limit in seconds",
						Value: 600,
					},
				},
				Action: runCommand,
			},
			{
				Name:   "connect",
				Usage:  "Open an interactive shell on the most recently launched machine",
				Action: connectCommand,
			},
			{
				Name:  "destroy",
				Usage: "Destroy the most recently launched machine (or one by --id)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Machine ID to destroy instead of the recorded one",
					},
					&cli.StringFlag{
						Name:  "volume-id",
						Usage: "Volume ID to destroy alongside --id",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: destroyCommand,
			},
			{
				Name:   "status",
				Usage:  "Show the provider's view of the most recently launched machine",
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
