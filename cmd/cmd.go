// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// runCommand performs reconciliation passes
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Reconcile recommendation feeds into library playlists",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Classify only; skip fetching, scanning and playlist writes",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single pass even when a cron schedule is configured",
			},
			&cli.IntFlag{
				Name:  "max-songs",
				Usage: "Cap recommendations considered per playlist (0 = no cap)",
				Value: 0,
			},
		},
		Action: r.Run,
	}
}

// scanCommand refreshes the rating cache
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Refresh the local rating cache from the library server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Clear the cache and rescan even if a scan already ran today",
			},
		},
		Action: r.Scan,
	}
}

// statusCommand reports the last run and cadence state
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the last run record and cooldown state",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Status,
	}
}

// setupCommand writes a starter configuration
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a starter config file and state directory",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Setup,
	}
}
