package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/google"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/view"
)

type cliEnv struct {
	t       *testing.T
	cfgPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	// never pick up a developer's remote settings
	for _, k := range []string{"TASKBOARD_PROJECT_ID", "TASKBOARD_API_KEY", "TASKBOARD_STORAGE", "TASKBOARD_ADDR"} {
		t.Setenv(k, "")
	}
	return &cliEnv{t: t, cfgPath: filepath.Join(t.TempDir(), "config.json")}
}

// run executes the CLI with stdin and returns stdout.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.Writer = &out
	root.ErrWriter = io.Discard
	root.Reader = strings.NewReader(stdin)
	argv := append([]string{"taskboard", "--config", e.cfgPath}, args...)
	err := root.Run(context.Background(), argv)
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err, "taskboard %s", strings.Join(args, " "))
	return out
}

func (e *cliEnv) add(args ...string) string {
	e.t.Helper()
	out := e.mustRun(append([]string{"add"}, args...)...)
	id := strings.TrimSpace(strings.TrimPrefix(out, "Added task "))
	require.True(e.t, model.IsLocalID(id), "unexpected add output %q", out)
	return id
}

func (e *cliEnv) listJSON(args ...string) []taskRow {
	e.t.Helper()
	out := e.mustRun(append([]string{"ls", "-o", "json"}, args...)...)
	var rows []taskRow
	require.NoError(e.t, json.Unmarshal([]byte(out), &rows))
	return rows
}

func TestAddAndList(t *testing.T) {
	e := newCLIEnv(t)

	assert.Equal(t, "No tasks found.\n", e.mustRun("ls"))

	id := e.add("--priority", "high", "--deadline", "2024-05-20", "--memo", "q2", "Write", "report")
	e.add("--category", "private", "--priority", "low", "Buy milk")

	rows := e.listJSON("--sort", "priority-high")
	require.Len(t, rows, 2)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "Write report", rows[0].Name)
	assert.Equal(t, "work", rows[0].Category)
	assert.Equal(t, "high", rows[0].Priority)
	assert.Equal(t, "2024-05-20", rows[0].Deadline)
	assert.Equal(t, "q2", rows[0].Memo)
	assert.Equal(t, "Buy milk", rows[1].Name)
	assert.Equal(t, "low", rows[1].Priority)

	private := e.listJSON("--category", "private")
	require.Len(t, private, 1)
	assert.Equal(t, "Buy milk", private[0].Name)

	table := e.mustRun("ls")
	assert.Contains(t, table, "ID")
	assert.Contains(t, table, "Write report")
	assert.Contains(t, table, "2024-05-20")
}

func TestListYAML(t *testing.T) {
	e := newCLIEnv(t)
	e.add("Plan sprint")

	out := e.mustRun("ls", "--output", "yaml")
	var rows []taskRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Plan sprint", rows[0].Name)
	assert.Equal(t, "medium", rows[0].Priority)
}

func TestListRejectsBadFlags(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("", "ls", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")

	_, err = e.run("", "ls", "--priority", "urgent")
	assert.ErrorIs(t, err, view.ErrInvalidFilter)
}

func TestAddRequiresName(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run("", "add", "--priority", "high")
	assert.ErrorIs(t, err, model.ErrInvalidTask)
}

func TestEditKeepsUnsetFields(t *testing.T) {
	e := newCLIEnv(t)
	id := e.add("--priority", "high", "--memo", "draft", "Report")

	out := e.mustRun("edit", "--progress", "50", "--in-progress", id)
	assert.Equal(t, "Updated task "+id+"\n", out)

	rows := e.listJSON()
	require.Len(t, rows, 1)
	assert.Equal(t, 50, rows[0].Progress)
	assert.True(t, rows[0].InProgress)
	assert.Equal(t, "high", rows[0].Priority)
	assert.Equal(t, "draft", rows[0].Memo)

	e.mustRun("edit", "--progress", "150", id)
	assert.Equal(t, 100, e.listJSON()[0].Progress)

	_, err := e.run("", "edit", "--category", "hobby", id)
	assert.ErrorIs(t, err, model.ErrInvalidTask)
}

func TestShow(t *testing.T) {
	e := newCLIEnv(t)
	id := e.add("--deadline", "2024-05-20", "--memo", "line one", "Report")

	out := e.mustRun("show", id)
	assert.Contains(t, out, "ID:          "+id)
	assert.Contains(t, out, "Name:        Report")
	assert.Contains(t, out, "Deadline:    2024-05-20")
	assert.Contains(t, out, "Memo:\nline one\n")

	_, err := e.run("", "show", "task_missing")
	assert.ErrorContains(t, err, "task not found")
}

func TestRemove(t *testing.T) {
	e := newCLIEnv(t)
	id := e.add("Report")

	out, err := e.run("n\n", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, `Delete task "Report"? [y/N]`)
	assert.Contains(t, out, "Kept.")
	assert.Len(t, e.listJSON(), 1)

	// no answer at all keeps the task too
	_, err = e.run("", "rm", id)
	require.NoError(t, err)
	assert.Len(t, e.listJSON(), 1)

	out, err = e.run("y\n", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task "+id)
	assert.Empty(t, e.listJSON())

	other := e.add("Other")
	e.mustRun("delete", "--yes", other)
	assert.Empty(t, e.listJSON())
}

func TestCal(t *testing.T) {
	e := newCLIEnv(t)
	e.add("--deadline", "2024-05-20", "Report")

	out := e.mustRun("cal", "--month", "2024-05")
	assert.True(t, strings.HasPrefix(out, "May 2024\n"), out)
	assert.Contains(t, out, "Report")

	out = e.mustRun("cal", "--month", "2024-06")
	assert.NotContains(t, out, "Report")

	_, err := e.run("", "cal", "--month", "2024-13")
	assert.Error(t, err)
}

func TestConfigSetCalendar(t *testing.T) {
	e := newCLIEnv(t)

	out := e.mustRun("config", "set-calendar", "--schedule", "07:30", "Deadlines")
	assert.Contains(t, out, "Default calendar set to: Deadlines")
	assert.Contains(t, out, "Export schedule: 07:30")

	cfg, err := config.Load(e.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Deadlines", cfg.Calendar.Name)
	assert.Equal(t, "07:30", cfg.Calendar.SyncSchedule)

	out = e.mustRun("config", "show")
	var shown config.Config
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&shown))
	assert.Equal(t, "Deadlines", shown.Calendar.Name)
	assert.Contains(t, out, "# remote storage: not configured")

	_, err = e.run("", "config", "set-calendar", "--schedule", "25:99")
	assert.Error(t, err)

	e.mustRun("config", "set-calendar", "--schedule", "off")
	cfg, err = config.Load(e.cfgPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.Calendar.SyncSchedule)
	assert.Equal(t, "Deadlines", cfg.Calendar.Name)
}

func TestCalendarPushRequiresLogin(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run("", "calendar", "push")
	assert.ErrorContains(t, err, "taskboard login")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "Tasks", resultFixture(), OutputTable))
	assert.Equal(t, "Calendar \"Tasks\": 2 created, 1 updated, 3 unchanged, 1 deleted, 0 failed\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, "Tasks", resultFixture(), OutputJSON))
	assert.JSONEq(t, `{"created":2,"updated":1,"unchanged":3,"deleted":1,"failed":0}`, buf.String())
}

func resultFixture() google.Result {
	return google.Result{Created: 2, Updated: 1, Unchanged: 3, Deleted: 1}
}
