// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles configuration and database initialization
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Action: r.SetupDatabase,
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the run history database and apply migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "check",
				Usage:  "Validate the configuration",
				Action: r.SetupCheck,
			},
		},
	}
}

// authCommand handles Spotify authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with Spotify using OAuth2",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show whether the stored credentials work",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove stored tokens",
				Action: r.AuthLogout,
			},
		},
	}
}

// libraryCommand handles read-only library listings
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Inspect saved tracks and playlists",
		Commands: []*cli.Command{
			{
				Name:  "tracks",
				Usage: "List saved tracks with their month",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks to fetch (0 for all)",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
					&cli.StringFlag{
						Name:    "export",
						Aliases: []string{"o"},
						Usage:   "Write tracks to a CSV file",
					},
				},
				Action: r.LibraryTracks,
			},
			{
				Name:  "playlists",
				Usage: "List playlists",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to show (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.LibraryPlaylists,
			},
		},
	}
}

// organizeCommand handles planning and running the monthly reconciliation
func organizeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "organize",
		Usage: "File saved tracks into monthly playlists",
		Commands: []*cli.Command{
			{
				Name:  "plan",
				Usage: "Show what a run would change without modifying the library",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the plan as JSON",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write the plan to a file (.txt, .csv, .md or .json)",
					},
				},
				Action: r.OrganizePlan,
			},
			{
				Name:  "run",
				Usage: "Create missing monthly playlists and add new tracks",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "ui",
						Usage: "Use the interactive terminal UI",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the confirmation step in the terminal UI",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write the run report to a file (.txt, .csv, .md or .json)",
					},
				},
				Action: r.OrganizeRun,
			},
		},
	}
}

// historyCommand handles recorded runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect recorded runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show (0 for all)",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show a recorded run (latest by default)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Run ID",
					},
					&cli.StringFlag{
						Name:  "period",
						Usage: "Only show one month (YYYYMM)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write the run to a file (.txt, .csv, .md or .json)",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Delete a recorded run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}
