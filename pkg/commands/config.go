package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/scheduler"
)

func NewConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the configuration",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:      "set-calendar",
				Usage:     "Set the Google Calendar that receives task deadlines",
				ArgsUsage: "<calendar name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "schedule", Usage: "Periodic export while serving: cron spec, @every 1h or HH:MM; \"off\" disables"},
				},
				Action: runSetCalendar,
			},
		},
		DefaultCommand: "show",
	}
}

func runConfigShow(_ context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.cfg); err != nil {
		return err
	}
	if !a.cfg.Firebase.Configured() {
		fmt.Fprintln(a.out, "# remote storage: not configured")
	}
	return nil
}

func runSetCalendar(_ context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if name == "" && !cmd.IsSet("schedule") {
		return fmt.Errorf("usage: taskboard config set-calendar [--schedule SPEC] <calendar name>")
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	if name != "" {
		a.cfg.Calendar.Name = name
	}
	if cmd.IsSet("schedule") {
		spec := cmd.String("schedule")
		if spec == "off" {
			spec = ""
		}
		if spec != "" {
			if _, err := scheduler.ParseSpec(spec); err != nil {
				return err
			}
		}
		a.cfg.Calendar.SyncSchedule = spec
	}

	if err := config.Save(a.cfg, a.cfgPath); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	fmt.Fprintf(a.out, "Default calendar set to: %s\n", a.cfg.Calendar.Name)
	if a.cfg.Calendar.SyncSchedule != "" {
		fmt.Fprintf(a.out, "Export schedule: %s\n", a.cfg.Calendar.SyncSchedule)
	}
	return nil
}
