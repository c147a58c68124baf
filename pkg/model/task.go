package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrInvalidTask is returned by Validate for records that cannot be stored.
var ErrInvalidTask = errors.New("invalid task")

// Category separates work items from private ones.
type Category string

const (
	CategoryWork    Category = "work"
	CategoryPrivate Category = "private"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryWork || c == CategoryPrivate
}

// Label returns the human-readable name shown on task cards.
func (c Category) Label() string {
	switch c {
	case CategoryPrivate:
		return "Private"
	case CategoryWork:
		return "Work"
	default:
		return string(c)
	}
}

// ParseCategory parses a category name. The empty string is rejected.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidTask, s)
	}
	return c, nil
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities with the most urgent first (high=1, low=3).
// Unknown priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Label returns the human-readable name shown on task cards.
func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return string(p)
	}
}

// ParsePriority parses a priority name. The empty string is rejected.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, s)
	}
	return p, nil
}

// Task is a single to-do item.
type Task struct {
	ID         string      `json:"id"`
	Category   Category    `json:"category"`
	Name       string      `json:"name"`
	Priority   Priority    `json:"priority"`
	Deadline   *civil.Date `json:"deadline"`
	Progress   int         `json:"progress"`
	Memo       string      `json:"memo"`
	InProgress bool        `json:"inProgress"`
	// Server-assigned, remote mode only.
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// HasDeadline reports whether the task carries a deadline.
func (t Task) HasDeadline() bool {
	return t.Deadline != nil
}

// DueOn reports whether the task's deadline is d.
func (t Task) DueOn(d civil.Date) bool {
	return t.Deadline != nil && *t.Deadline == d
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	c := t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.CreatedAt != nil {
		ts := *t.CreatedAt
		c.CreatedAt = &ts
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		c.UpdatedAt = &ts
	}
	return c
}

// Normalize applies form defaults: category falls back to work, priority
// to medium, name and memo are trimmed and progress is clamped to 0..100.
func (t *Task) Normalize() {
	if t.Category == "" {
		t.Category = CategoryWork
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Memo = strings.TrimSpace(t.Memo)
	switch {
	case t.Progress < 0:
		t.Progress = 0
	case t.Progress > 100:
		t.Progress = 100
	}
}

// Validate checks the fields every stored task must carry.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTask, t.Category)
	}
	if t.Deadline != nil && !t.Deadline.IsValid() {
		return fmt.Errorf("%w: invalid deadline %s", ErrInvalidTask, t.Deadline)
	}
	return nil
}

// ParseDeadline parses a YYYY-MM-DD date. The empty string means no deadline.
func ParseDeadline(s string) (*civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: deadline %q is not YYYY-MM-DD", ErrInvalidTask, s)
	}
	return &d, nil
}

// CompareDates orders two dates chronologically (-1, 0, 1).
func CompareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// CloneAll copies a task list so callers can hand it out without aliasing.
func CloneAll(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
