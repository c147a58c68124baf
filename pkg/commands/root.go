// Package commands holds the taskboard command-line interface.
package commands

import (
	"github.com/urfave/cli/v3"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "taskboard",
		Usage: "Track work and private tasks locally or in your Firestore project",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default ~/.config/taskboard/config.json)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewListCommand(),
			NewShowCommand(),
			NewAddCommand(),
			NewEditCommand(),
			NewRemoveCommand(),
			NewCalCommand(),
			NewLoginCommand(),
			NewLogoutCommand(),
			NewConfigCommand(),
			NewCalendarCommand(),
		},
	}
}
