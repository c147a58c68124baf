package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/session"
	"github.com/harrisonrobin/taskboard/pkg/view"
)

// taskFlags are shared by add and edit.
func taskFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Task name"},
		&cli.StringFlag{Name: "category", Usage: "work or private"},
		&cli.StringFlag{Name: "priority", Aliases: []string{"p"}, Usage: "high, medium or low"},
		&cli.StringFlag{Name: "deadline", Aliases: []string{"d"}, Usage: "Deadline as YYYY-MM-DD, empty to clear"},
		&cli.IntFlag{Name: "progress", Usage: "Progress in percent (0-100)"},
		&cli.StringFlag{Name: "memo", Aliases: []string{"m"}, Usage: "Free-form notes"},
		&cli.BoolFlag{Name: "in-progress", Usage: "Mark the task as being worked on"},
	}
}

// applyTaskFlags copies the flags that were set onto t.
func applyTaskFlags(cmd *cli.Command, t *model.Task) error {
	if cmd.IsSet("name") {
		t.Name = cmd.String("name")
	}
	if cmd.IsSet("category") {
		c, err := model.ParseCategory(cmd.String("category"))
		if err != nil {
			return err
		}
		t.Category = c
	}
	if cmd.IsSet("priority") {
		p, err := model.ParsePriority(cmd.String("priority"))
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if cmd.IsSet("deadline") {
		d, err := model.ParseDeadline(cmd.String("deadline"))
		if err != nil {
			return err
		}
		t.Deadline = d
	}
	if cmd.IsSet("progress") {
		t.Progress = cmd.Int("progress")
	}
	if cmd.IsSet("memo") {
		t.Memo = cmd.String("memo")
	}
	if cmd.IsSet("in-progress") {
		t.InProgress = cmd.Bool("in-progress")
	}
	return nil
}

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "List tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only work or private tasks"},
			&cli.StringFlag{Name: "priority", Aliases: []string{"p"}, Usage: "Only tasks of this priority"},
			&cli.StringFlag{Name: "from", Usage: "Deadline on or after YYYY-MM-DD"},
			&cli.StringFlag{Name: "to", Usage: "Deadline on or before YYYY-MM-DD"},
			&cli.BoolFlag{Name: "in-progress", Usage: "Only tasks being worked on (--in-progress=false for the rest)"},
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "deadline-asc, deadline-desc, priority-high or priority-low"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "table, json or yaml", Value: OutputTable},
		},
		Action: runList,
	}
}

// listFilter builds the filter from flags through the same parser the HTTP
// query string uses.
func listFilter(cmd *cli.Command) (view.Filter, error) {
	v := url.Values{}
	set := func(param, flag string) {
		if cmd.IsSet(flag) {
			v.Set(param, cmd.String(flag))
		}
	}
	set(view.ParamCategory, "category")
	set(view.ParamPriority, "priority")
	set(view.ParamDeadlineFrom, "from")
	set(view.ParamDeadlineTo, "to")
	set(view.ParamSort, "sort")
	if cmd.IsSet("in-progress") {
		v.Set(view.ParamInProgress, strconv.FormatBool(cmd.Bool("in-progress")))
	}
	return view.ParseFilter(v)
}

func runList(ctx context.Context, cmd *cli.Command) error {
	f, err := listFilter(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return printTasks(a.out, view.Derive(a.ctl.Tasks(), f), cmd.String("output"), time.Now())
}

func NewShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show task details",
		ArgsUsage: "<task_id>",
		Action:    runShow,
	}
}

func runShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskboard show <task_id>")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.ctl.Get(id)
	if err != nil {
		return err
	}
	printTask(a.out, t, time.Now())
	return nil
}

func NewAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a task",
		ArgsUsage: "<name>",
		Flags:     taskFlags(),
		Action:    runAdd,
	}
}

func runAdd(ctx context.Context, cmd *cli.Command) error {
	t := model.Task{Name: strings.Join(cmd.Args().Slice(), " ")}
	if err := applyTaskFlags(cmd, &t); err != nil {
		return err
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.ctl.Save(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added task %s\n", id)
	return nil
}

func NewEditCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Change fields of a task; unset flags keep their value",
		ArgsUsage: "<task_id>",
		Flags:     taskFlags(),
		Action:    runEdit,
	}
}

func runEdit(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskboard edit [flags] <task_id>")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.ctl.Get(id)
	if err != nil {
		return err
	}
	if err := applyTaskFlags(cmd, &t); err != nil {
		return err
	}
	if _, err := a.ctl.Save(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated task %s\n", id)
	return nil
}

func NewRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Aliases:   []string{"delete"},
		Usage:     "Delete a task",
		ArgsUsage: "<task_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
		},
		Action: runRemove,
	}
}

func runRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: taskboard rm [--yes] <task_id>")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.ctl.Get(id)
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") {
		ok, err := confirm(a, fmt.Sprintf("Delete task %q?", t.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Kept.")
			return nil
		}
	}

	if err := a.ctl.Delete(ctx, id); err != nil {
		if errors.Is(err, session.ErrRemoteWrite) {
			return fmt.Errorf("task was not deleted: %w", err)
		}
		return err
	}
	fmt.Fprintf(a.out, "Deleted task %s\n", id)
	return nil
}

func confirm(a *app, question string) (bool, error) {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		// EOF without an answer
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
