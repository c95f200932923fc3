// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func idArgument() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "id", UsageText: "task id or unique prefix"}}
}

func platformArgument() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "platform", UsageText: "youtube, tiktok, instagram or x"}}
}

// serveCommand runs the queue and the HTTP API in the foreground
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the download queue and HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Override queue.concurrency",
			},
			&cli.BoolFlag{
				Name:  "paused",
				Usage: "Start with admission paused",
			},
		},
		Action: r.Serve,
	}
}

// addCommand queues a new download
func addCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Queue a URL for download",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Downloader format selection, e.g. bv*+ba/b",
			},
			&cli.IntFlag{
				Name:    "priority",
				Aliases: []string{"p"},
				Usage:   "Higher runs first (defaults to queue.default_priority)",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Retries after transient failures (defaults to queue.max_retries)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Add,
	}
}

// listCommand prints the queue snapshot
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "Show the queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Only tasks with this status",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Output CSV",
			},
		},
		Action: r.List,
	}
}

// showCommand prints one task
func showCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one task",
		Arguments: idArgument(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Show,
	}
}

func cancelCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a task and remove its partial files",
		Arguments: idArgument(),
		Action:    r.Cancel,
	}
}

func pauseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "pause",
		Usage:     "Pause a running task, keeping partial files",
		Arguments: idArgument(),
		Action:    r.Pause,
	}
}

func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Put a paused task back in the queue",
		Arguments: idArgument(),
		Action:    r.Resume,
	}
}

func retryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Queue a failed or cancelled task again",
		Arguments: idArgument(),
		Action:    r.Retry,
	}
}

// queueCommand controls admission for the whole queue
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Control the queue",
		Commands: []*cli.Command{
			{
				Name:   "pause",
				Usage:  "Stop starting new downloads; running ones continue",
				Action: r.QueuePause,
			},
			{
				Name:   "resume",
				Usage:  "Start downloads again",
				Action: r.QueueResume,
			},
			{
				Name:  "concurrency",
				Usage: "Set how many downloads run at once",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "n"},
				},
				Action: r.QueueConcurrency,
			},
		},
	}
}

// downloaderCommand inspects and updates the external downloader
func downloaderCommand(r *Runner) *cli.Command {
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
	return &cli.Command{
		Name:  "downloader",
		Usage: "Check or update the yt-dlp binary used by the server",
		Commands: []*cli.Command{
			{
				Name:   "version",
				Usage:  "Show whether the downloader runs and its version",
				Flags:  []cli.Flag{jsonFlag},
				Action: r.DownloaderVersion,
			},
			{
				Name:   "update",
				Usage:  "Run the downloader's self-update (yt-dlp -U)",
				Flags:  []cli.Flag{jsonFlag},
				Action: r.DownloaderUpdate,
			},
		},
	}
}

// sessionCommand manages platform logins
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sessions", "auth"},
		Usage:   "Manage platform login sessions",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls", "status"},
				Usage:   "Show the session for every platform",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SessionList,
			},
			{
				Name:      "set",
				Usage:     "Store cookies from a Netscape cookies.txt or JSON export",
				Arguments: platformArgument(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Cookie file to read (- for stdin)",
						Value:   "-",
					},
				},
				Action: r.SessionSet,
			},
			{
				Name:      "curl",
				Usage:     "Store cookies from a browser \"Copy as cURL\" command",
				Arguments: platformArgument(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command string",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a file containing the cURL command",
					},
				},
				Action: r.SessionCurl,
			},
			{
				Name:      "login",
				Usage:     "Open the platform login page in the login browser",
				Arguments: platformArgument(),
				Action:    r.SessionLogin,
			},
			{
				Name:      "check",
				Usage:     "Read the login back from the login browser",
				Arguments: platformArgument(),
				Action:    r.SessionCheck,
			},
			{
				Name:      "import",
				Usage:     "Import cookies from a local browser profile",
				Arguments: platformArgument(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "browser",
						Aliases:  []string{"b"},
						Usage:    "chrome, edge, firefox or opera",
						Required: true,
					},
				},
				Action: r.SessionImport,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm", "logout"},
				Usage:     "Forget the stored session",
				Arguments: platformArgument(),
				Action:    r.SessionDelete,
			},
		},
	}
}

// watchCommand returns the top-level dashboard command.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Live dashboard of the queue",
		Action:  r.Watch,
	}
}
