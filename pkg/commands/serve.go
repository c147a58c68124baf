package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/taskboard/pkg/scheduler"
	"github.com/harrisonrobin/taskboard/pkg/server"
)

const shutdownTimeout = 5 * time.Second

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the task API and live updates over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config, 127.0.0.1:8080)"},
			&cli.StringSliceFlag{Name: "origin", Usage: "Extra allowed websocket origin pattern"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if cmd.IsSet("addr") {
		addr = cmd.String("addr")
	}

	if w := a.ctl.Warning(); w != "" {
		fmt.Fprintf(a.out, "Note: %s\n", w)
	}

	if spec := a.cfg.Calendar.SyncSchedule; spec != "" {
		sched, err := a.scheduleExport(ctx, spec)
		if err != nil {
			return err
		}
		if sched != nil {
			sched.Start(ctx)
			defer sched.Stop()
		}
	}

	srv := server.New(server.Options{
		Addr:           addr,
		Session:        a.ctl,
		SignIn:         a.signIn,
		SignOut:        a.signOut,
		AllowedOrigins: cmd.StringSlice("origin"),
		Logger:         a.log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}

// scheduleExport registers the periodic calendar push. It returns nil when
// nobody is signed in.
func (a *app) scheduleExport(ctx context.Context, spec string) (*scheduler.Scheduler, error) {
	exp, err := a.exporter(ctx)
	if err != nil {
		a.log.Warn("calendar export not scheduled", "error", err)
		return nil, nil
	}

	sched := scheduler.New(time.Local, a.log)
	_, err = sched.Schedule(spec, "calendar-push", func(ctx context.Context) error {
		res, err := exp.Push(ctx, a.ctl.Tasks())
		a.log.Info("calendar push",
			"calendar", a.cfg.Calendar.Name,
			"created", res.Created,
			"updated", res.Updated,
			"deleted", res.Deleted,
			"failed", res.Failed,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("calendar.syncSchedule: %w", err)
	}
	return sched, nil
}
