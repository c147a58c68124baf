package commands

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/taskboard/pkg/calendar"
)

func NewCalCommand() *cli.Command {
	return &cli.Command{
		Name:  "cal",
		Usage: "Show a month of deadlines",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "month", Usage: "Month as YYYY-MM (default: this month)"},
		},
		Action: runCal,
	}
}

func runCal(ctx context.Context, cmd *cli.Command) error {
	today := civil.DateOf(time.Now())
	m := calendar.MonthOf(today)
	if cmd.IsSet("month") {
		parsed, err := calendar.ParseMonth(cmd.String("month"))
		if err != nil {
			return err
		}
		m = parsed
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return calendar.Project(m, a.ctl.Tasks(), today).Render(a.out)
}
