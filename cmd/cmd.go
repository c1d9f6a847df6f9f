// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"
)

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (json, csv, markdown, txt)",
		Value:   value,
	}
}

func prettyFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "pretty",
		Usage: "Pretty-print JSON output",
		Value: true,
	}
}

// setupCommand prepares a config file and the metadata table
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file or the metadata table",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config file to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the metadata table and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// resolveCommand looks up tracks through the cache
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Aliases:   []string{"get"},
		Usage:     "Resolve track ids, URIs or links to metadata",
		ArgsUsage: "<id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read ids from a file, one per line (- for stdin)",
			},
			formatFlag("json"),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
			&cli.IntFlag{
				Name:  "max-batch",
				Usage: "Reject requests with more distinct ids (0 splits them instead)",
				Value: -1,
			},
		},
		Action: r.Resolve,
	}
}

// warmCommand pre-resolves a list of ids
func warmCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Usage:     "Pre-resolve a list of tracks into the store",
		ArgsUsage: "[id]...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read ids from a file, one per line (- for stdin)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent resolve calls",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "Ids per resolve call",
				Value: 50,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Batches started per second",
				Value: 5,
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show an interactive progress view",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the summary as JSON",
			},
		},
		Action: r.Warm,
	}
}

// storeCommand reads the persistent store directly
func storeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Inspect the persistent metadata table",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print one stored record",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{prettyFlag()},
				Action:    r.StoreGet,
			},
			{
				Name:      "album",
				Usage:     "List stored tracks of an album",
				ArgsUsage: "<album-id>",
				Flags:     []cli.Flag{formatFlag("txt")},
				Action:    r.StoreAlbum,
			},
			{
				Name:      "artist",
				Usage:     "List stored tracks crediting an artist",
				ArgsUsage: "<artist-id>",
				Flags:     []cli.Flag{formatFlag("txt")},
				Action:    r.StoreArtist,
			},
			{
				Name:      "delete",
				Usage:     "Delete stored records",
				ArgsUsage: "<id>...",
				Action:    r.StoreDelete,
			},
			{
				Name:   "count",
				Usage:  "Print the number of stored records",
				Action: r.StoreCount,
			},
		},
	}
}

// tokenCommand checks that credentials can be exchanged
func tokenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Fetch an access token and print it masked",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Token source (client_credentials, web_player); defaults to the config",
			},
		},
		Action: r.Token,
	}
}

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve track lookups over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Address to listen on; defaults to the config",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on; defaults to the config",
			},
		},
		Action: r.Serve,
	}
}
