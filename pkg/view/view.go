// Package view derives the ordered task list shown to the user from the
// full task list and a filter/sort specification.
package view

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// ErrInvalidFilter is returned when a filter cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// SortOrder selects how Derive orders its result.
type SortOrder string

const (
	SortNone         SortOrder = ""
	SortDeadlineAsc  SortOrder = "deadline-asc"
	SortDeadlineDesc SortOrder = "deadline-desc"
	SortPriorityHigh SortOrder = "priority-high"
	SortPriorityLow  SortOrder = "priority-low"
)

// Valid reports whether o is a known sort order (including none).
func (o SortOrder) Valid() bool {
	switch o {
	case SortNone, SortDeadlineAsc, SortDeadlineDesc, SortPriorityHigh, SortPriorityLow:
		return true
	}
	return false
}

// Filter is the user's filter and sort choice. Zero fields do not filter.
type Filter struct {
	Category     model.Category
	DeadlineFrom *civil.Date
	DeadlineTo   *civil.Date
	Priority     model.Priority
	InProgress   *bool
	Sort         SortOrder
}

// IsZero reports whether the filter leaves the list untouched.
func (f Filter) IsZero() bool {
	return f.Category == "" && f.DeadlineFrom == nil && f.DeadlineTo == nil &&
		f.Priority == "" && f.InProgress == nil && f.Sort == SortNone
}

// Match reports whether t satisfies every predicate of f.
func (f Filter) Match(t model.Task) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.DeadlineFrom != nil {
		if t.Deadline == nil || t.Deadline.Before(*f.DeadlineFrom) {
			return false
		}
	}
	if f.DeadlineTo != nil {
		if t.Deadline == nil || t.Deadline.After(*f.DeadlineTo) {
			return false
		}
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.InProgress != nil && t.InProgress != *f.InProgress {
		return false
	}
	return true
}

// Derive returns the tasks matching f, ordered by f.Sort. The input slice
// is never modified; the result is always a new slice.
func Derive(tasks []model.Task, f Filter) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	if less := lessFunc(f.Sort); less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func lessFunc(order SortOrder) func(a, b model.Task) bool {
	switch order {
	case SortDeadlineAsc:
		return func(a, b model.Task) bool { return deadlineLess(a, b, false) }
	case SortDeadlineDesc:
		return func(a, b model.Task) bool { return deadlineLess(a, b, true) }
	case SortPriorityHigh:
		return func(a, b model.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case SortPriorityLow:
		return func(a, b model.Task) bool { return a.Priority.Rank() > b.Priority.Rank() }
	default:
		return nil
	}
}

// deadlineLess keeps tasks without a deadline last in both directions.
func deadlineLess(a, b model.Task, desc bool) bool {
	switch {
	case a.Deadline == nil:
		return false
	case b.Deadline == nil:
		return true
	}
	c := model.CompareDates(*a.Deadline, *b.Deadline)
	if desc {
		return c > 0
	}
	return c < 0
}

// Query parameter names used by ParseFilter and Values.
const (
	ParamCategory     = "category"
	ParamDeadlineFrom = "deadlineFrom"
	ParamDeadlineTo   = "deadlineTo"
	ParamPriority     = "priority"
	ParamInProgress   = "inProgress"
	ParamSort         = "sort"
)

// ParseFilter reads a filter from query parameters. Empty values are unset.
func ParseFilter(v url.Values) (Filter, error) {
	var f Filter
	if s := v.Get(ParamCategory); s != "" {
		c, err := model.ParseCategory(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		f.Category = c
	}
	if s := v.Get(ParamPriority); s != "" {
		p, err := model.ParsePriority(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		f.Priority = p
	}
	var err error
	if f.DeadlineFrom, err = parseBound(v.Get(ParamDeadlineFrom)); err != nil {
		return Filter{}, err
	}
	if f.DeadlineTo, err = parseBound(v.Get(ParamDeadlineTo)); err != nil {
		return Filter{}, err
	}
	if s := v.Get(ParamInProgress); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: inProgress %q is not a boolean", ErrInvalidFilter, s)
		}
		f.InProgress = &b
	}
	f.Sort = SortOrder(strings.ToLower(v.Get(ParamSort)))
	if !f.Sort.Valid() {
		return Filter{}, fmt.Errorf("%w: unknown sort order %q", ErrInvalidFilter, v.Get(ParamSort))
	}
	return f, nil
}

func parseBound(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidFilter, s)
	}
	return &d, nil
}

// Values encodes f as query parameters; unset fields are omitted.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Category != "" {
		v.Set(ParamCategory, string(f.Category))
	}
	if f.DeadlineFrom != nil {
		v.Set(ParamDeadlineFrom, f.DeadlineFrom.String())
	}
	if f.DeadlineTo != nil {
		v.Set(ParamDeadlineTo, f.DeadlineTo.String())
	}
	if f.Priority != "" {
		v.Set(ParamPriority, string(f.Priority))
	}
	if f.InProgress != nil {
		v.Set(ParamInProgress, strconv.FormatBool(*f.InProgress))
	}
	if f.Sort != SortNone {
		v.Set(ParamSort, string(f.Sort))
	}
	return v
}
