package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskboard/pkg/index"
	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Events is the calendar the exporter writes to. *CalendarClient
// implements it.
type Events interface {
	Get(ctx context.Context, eventID string) (*calendar.Event, error)
	FindByTaskID(ctx context.Context, taskID string) (*calendar.Event, error)
	ListExported(ctx context.Context) ([]*calendar.Event, error)
	Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error)
	Patch(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error)
	Delete(ctx context.Context, eventID string) error
}

// Action is what a sync did to a task's event.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Result counts the outcome of one Push.
type Result struct {
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Deleted   int `json:"deleted" yaml:"deleted"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Exporter mirrors dated tasks as all-day calendar events.
type Exporter struct {
	events Events
	index  *index.EventIndex
	now    func() time.Time
	log    *slog.Logger
}

// NewExporter creates an exporter. idx may be nil; every task is then
// looked up by its event property.
func NewExporter(events Events, idx *index.EventIndex, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{events: events, index: idx, now: time.Now, log: log}
}

// SetClock replaces the clock used to decide which tasks are overdue.
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// SyncEvent creates the task's event or patches the fields that changed.
func (e *Exporter) SyncEvent(ctx context.Context, t model.Task, today civil.Date) (*calendar.Event, Action, error) {
	target, err := EventFor(t, today)
	if err != nil {
		return nil, "", err
	}

	var existing *calendar.Event
	if e.index != nil {
		if eventID := e.index.Get(t.ID); eventID != "" {
			existing, err = e.events.Get(ctx, eventID)
			if err != nil {
				e.log.Debug("indexed event lookup failed, searching", "task", t.ID, "event", eventID, "error", err)
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = e.events.FindByTaskID(ctx, t.ID)
		if err != nil {
			return nil, "", fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch := EventPatch(existing, target)
		if patch == nil {
			e.remember(t.ID, existing.Id)
			return existing, ActionUnchanged, nil
		}
		updated, err := e.events.Patch(ctx, existing.Id, patch)
		if err != nil {
			return nil, "", fmt.Errorf("patch event %s: %w", existing.Id, err)
		}
		e.remember(t.ID, updated.Id)
		return updated, ActionUpdated, nil
	}

	created, err := e.events.Insert(ctx, target)
	if err != nil {
		return nil, "", fmt.Errorf("insert event: %w", err)
	}
	e.remember(t.ID, created.Id)
	return created, ActionCreated, nil
}

func (e *Exporter) remember(taskID, eventID string) {
	if e.index != nil {
		e.index.Set(taskID, eventID)
	}
}

// Push syncs every task with a deadline and deletes exported events whose
// task was removed or lost its deadline. Failures on single tasks do not
// stop the push; they are joined into the returned error.
func (e *Exporter) Push(ctx context.Context, tasks []model.Task) (Result, error) {
	var (
		res    Result
		errs   []error
		today  = civil.DateOf(e.now())
		synced = make(map[string]string)
	)

	for _, t := range tasks {
		if !t.HasDeadline() {
			continue
		}
		ev, action, err := e.SyncEvent(ctx, t, today)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			// keep its event: the task still exists
			synced[t.ID] = ""
			continue
		}
		synced[t.ID] = ev.Id
		switch action {
		case ActionCreated:
			res.Created++
		case ActionUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	exported, err := e.events.ListExported(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, ev := range exported {
			taskID := TaskIDOf(ev)
			eventID, kept := synced[taskID]
			if kept && (eventID == "" || eventID == ev.Id) {
				continue
			}
			if err := e.events.Delete(ctx, ev.Id); err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("delete event %s: %w", ev.Id, err))
				continue
			}
			e.log.Debug("deleted stale event", "task", taskID, "event", ev.Id)
			res.Deleted++
		}
	}

	if e.index != nil {
		for _, taskID := range e.index.TaskIDs() {
			if _, kept := synced[taskID]; !kept {
				e.index.Remove(taskID)
			}
		}
		if err := e.index.Save(); err != nil {
			e.log.Warn("failed to save event index", "error", err)
		}
	}

	e.log.Info("calendar push finished",
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged,
		"deleted", res.Deleted, "failed", res.Failed)
	return res, errors.Join(errs...)
}
