package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskboard/pkg/calendar"
	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Output formats of ls.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// taskRow is a task as printed by the CLI.
type taskRow struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Category   string `json:"category" yaml:"category"`
	Priority   string `json:"priority" yaml:"priority"`
	Deadline   string `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Urgency    string `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	Progress   int    `json:"progress" yaml:"progress"`
	InProgress bool   `json:"inProgress" yaml:"inProgress"`
	Memo       string `json:"memo,omitempty" yaml:"memo,omitempty"`
}

func rowOf(t model.Task, today civil.Date) taskRow {
	r := taskRow{
		ID:         t.ID,
		Name:       t.Name,
		Category:   string(t.Category),
		Priority:   string(t.Priority),
		Progress:   t.Progress,
		InProgress: t.InProgress,
		Memo:       t.Memo,
	}
	if t.Deadline != nil {
		r.Deadline = t.Deadline.String()
	}
	if u := calendar.UrgencyOf(t.Deadline, today); u != calendar.UrgencyNone {
		r.Urgency = string(u)
	}
	return r
}

func printTasks(w io.Writer, tasks []model.Task, format string, now time.Time) error {
	today := civil.DateOf(now)
	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, rowOf(t, today))
	}

	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case OutputTable, "":
		return printTable(w, rows)
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, OutputTable, OutputJSON, OutputYAML)
	}
}

func printTable(w io.Writer, rows []taskRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No tasks found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tCATEGORY\tDEADLINE\tPROGRESS\tNAME")
	for _, r := range rows {
		deadline := "-"
		if r.Deadline != "" {
			deadline = r.Deadline
			switch calendar.Urgency(r.Urgency) {
			case calendar.UrgencyOverdue:
				deadline += " !"
			case calendar.UrgencyToday:
				deadline += " *"
			}
		}
		name := r.Name
		if r.InProgress {
			name = "‣ " + name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			r.ID,
			model.Priority(r.Priority).Label(),
			model.Category(r.Category).Label(),
			deadline,
			r.Progress,
			name,
		)
	}
	return tw.Flush()
}

func printTask(w io.Writer, t model.Task, now time.Time) {
	r := rowOf(t, civil.DateOf(now))
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Name:        %s\n", r.Name)
	fmt.Fprintf(w, "Category:    %s\n", t.Category.Label())
	fmt.Fprintf(w, "Priority:    %s\n", t.Priority.Label())
	if r.Deadline != "" {
		if r.Urgency != "" {
			fmt.Fprintf(w, "Deadline:    %s (%s)\n", r.Deadline, r.Urgency)
		} else {
			fmt.Fprintf(w, "Deadline:    %s\n", r.Deadline)
		}
	}
	fmt.Fprintf(w, "Progress:    %d%%\n", r.Progress)
	fmt.Fprintf(w, "In progress: %t\n", r.InProgress)
	if t.CreatedAt != nil {
		fmt.Fprintf(w, "Created:     %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if t.UpdatedAt != nil {
		fmt.Fprintf(w, "Updated:     %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if r.Memo != "" {
		fmt.Fprintf(w, "\nMemo:\n%s\n", strings.TrimRight(r.Memo, "\n"))
	}
}
