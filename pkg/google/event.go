package google

import (
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"google.golang.org/api/calendar/v3"

	taskcal "github.com/harrisonrobin/taskboard/pkg/calendar"
	"github.com/harrisonrobin/taskboard/pkg/model"
)

const (
	// TaskIDProperty is the private extended property linking an event to
	// its task.
	TaskIDProperty = "taskboard_id"
	// markerProperty tags every exported event so stale ones can be listed.
	markerProperty = "taskboard"
	markerValue    = "1"
)

// Summary prefixes.
const (
	prefixDone       = "✓"
	prefixInProgress = "‣"
	prefixOverdue    = "!"
)

// Google Calendar event color ids per priority.
var priorityColors = map[model.Priority]string{
	model.PriorityHigh:   "11", // tomato
	model.PriorityMedium: "5",  // banana
	model.PriorityLow:    "2",  // sage
}

const defaultColor = "8" // graphite

func colorFor(p model.Priority) string {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return defaultColor
}

// summaryFor prefixes the task name with its state: done, in progress or
// overdue, in that order of precedence.
func summaryFor(t model.Task, today civil.Date) string {
	prefix := ""
	switch {
	case t.Progress >= 100:
		prefix = prefixDone
	case t.InProgress:
		prefix = prefixInProgress
	case taskcal.UrgencyOf(t.Deadline, today) == taskcal.UrgencyOverdue:
		prefix = prefixOverdue
	}
	if prefix == "" {
		return t.Name
	}
	return prefix + " " + t.Name
}

func descriptionFor(t model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", t.Category.Label())
	fmt.Fprintf(&b, "Priority: %s\n", t.Priority.Label())
	fmt.Fprintf(&b, "Progress: %d%%\n", t.Progress)
	if t.InProgress {
		b.WriteString("In progress\n")
	}
	fmt.Fprintf(&b, "ID: %s\n", t.ID)
	if t.Memo != "" {
		b.WriteString("\nNotes:\n")
		b.WriteString(t.Memo)
		b.WriteString("\n")
	}
	return b.String()
}

// EventFor converts a dated task into an all-day event on its deadline.
func EventFor(t model.Task, today civil.Date) (*calendar.Event, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("could not convert task without id")
	}
	if t.Deadline == nil {
		return nil, fmt.Errorf("task has no deadline: %s", t.ID)
	}
	day := *t.Deadline
	return &calendar.Event{
		Summary:      summaryFor(t, today),
		Description:  descriptionFor(t),
		ColorId:      colorFor(t.Priority),
		Start:        &calendar.EventDateTime{Date: day.String()},
		End:          &calendar.EventDateTime{Date: day.AddDays(1).String()},
		Transparency: "transparent",
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				TaskIDProperty: t.ID,
				markerProperty: markerValue,
			},
		},
	}, nil
}

// EventPatch returns the fields of target that differ from existing, or nil
// when the event is up to date.
func EventPatch(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	changed := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		changed = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		changed = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		changed = true
	}
	if eventDate(existing.Start) != eventDate(target.Start) || eventDate(existing.End) != eventDate(target.End) {
		// clear any timed start left from a manual edit
		patch.Start = target.Start
		patch.End = target.End
		changed = true
	}
	if TaskIDOf(existing) != TaskIDOf(target) || privateProperty(existing, markerProperty) != markerValue {
		patch.ExtendedProperties = target.ExtendedProperties
		changed = true
	}

	if !changed {
		return nil
	}
	return patch
}

func privateProperty(ev *calendar.Event, key string) string {
	if ev == nil || ev.ExtendedProperties == nil {
		return ""
	}
	return ev.ExtendedProperties.Private[key]
}

func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	return dt.DateTime
}

var descriptionID = regexp.MustCompile(`(?m)^ID: (\S+)$`)

// TaskIDOf reads the task id of an exported event, falling back to the ID
// line of the description for events whose properties were stripped.
func TaskIDOf(ev *calendar.Event) string {
	if ev == nil {
		return ""
	}
	if id := privateProperty(ev, TaskIDProperty); id != "" {
		return id
	}
	if m := descriptionID.FindStringSubmatch(ev.Description); m != nil {
		return m[1]
	}
	return ""
}
