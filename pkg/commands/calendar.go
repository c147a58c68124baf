package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskboard/pkg/google"
)

func NewCalendarCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendar",
		Usage: "Google Calendar export",
		Commands: []*cli.Command{
			{
				Name:  "push",
				Usage: "Create or update an all-day event for every task with a deadline",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "table, json or yaml", Value: OutputTable},
				},
				Action: runCalendarPush,
			},
		},
	}
}

func runCalendarPush(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	exp, err := a.exporter(ctx)
	if err != nil {
		return err
	}
	res, pushErr := exp.Push(ctx, a.ctl.Tasks())
	if err := printResult(a.out, a.cfg.Calendar.Name, res, cmd.String("output")); err != nil {
		return err
	}
	return pushErr
}

func printResult(w io.Writer, calendarName string, res google.Result, format string) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case OutputTable, "":
		_, err := fmt.Fprintf(w, "Calendar %q: %d created, %d updated, %d unchanged, %d deleted, %d failed\n",
			calendarName, res.Created, res.Updated, res.Unchanged, res.Deleted, res.Failed)
		return err
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, OutputTable, OutputJSON, OutputYAML)
	}
}
