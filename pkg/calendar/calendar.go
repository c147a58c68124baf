// Package calendar projects tasks onto a month grid.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

const (
	// GridCells is six full weeks, enough for any month.
	GridCells = 42
	// MaxTasksPerCell is how many tasks a day cell lists before "+N more".
	MaxTasksPerCell = 3
	// SoonDays is the horizon within which a deadline counts as "soon".
	SoonDays = 3
)

// Month identifies a displayed month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d civil.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("month %q is not YYYY-MM: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// First returns the first day of the month.
func (m Month) First() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(m.First().AddDays(m.Days()))
}

// Prev returns the preceding month.
func (m Month) Prev() Month {
	return MonthOf(m.First().AddDays(-1))
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Cell is one day of the grid.
type Cell struct {
	Date     civil.Date   `json:"date"`
	InMonth  bool         `json:"inMonth"`
	Today    bool         `json:"today"`
	Tasks    []model.Task `json:"tasks"`
	Overflow int          `json:"overflow"`
}

// Grid is the 42-cell projection of a month.
type Grid struct {
	Month Month  `json:"-"`
	Cells []Cell `json:"cells"`
}

// Project lays out m as 42 cells starting on the Sunday on or before the
// first of the month. Each cell lists up to MaxTasksPerCell tasks due that
// day, in list order, and counts the rest in Overflow.
func Project(m Month, tasks []model.Task, today civil.Date) Grid {
	first := m.First()
	start := first.AddDays(-int(weekday(first)))

	byDate := make(map[civil.Date][]model.Task)
	for _, t := range tasks {
		if t.Deadline != nil {
			byDate[*t.Deadline] = append(byDate[*t.Deadline], t)
		}
	}

	g := Grid{Month: m, Cells: make([]Cell, GridCells)}
	for i := range g.Cells {
		d := start.AddDays(i)
		due := byDate[d]
		cell := Cell{
			Date:    d,
			InMonth: d.Year == m.Year && d.Month == m.Month,
			Today:   d == today,
			Tasks:   []model.Task{},
		}
		if len(due) > MaxTasksPerCell {
			cell.Overflow = len(due) - MaxTasksPerCell
			due = due[:MaxTasksPerCell]
		}
		cell.Tasks = append(cell.Tasks, due...)
		g.Cells[i] = cell
	}
	return g
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Urgency classifies a deadline relative to today.
type Urgency string

const (
	UrgencyNone    Urgency = ""
	UrgencyOverdue Urgency = "overdue"
	UrgencyToday   Urgency = "today"
	UrgencySoon    Urgency = "soon"
)

// UrgencyOf returns how pressing a deadline is. Tasks without a deadline
// and deadlines more than SoonDays away are UrgencyNone.
func UrgencyOf(deadline *civil.Date, today civil.Date) Urgency {
	if deadline == nil {
		return UrgencyNone
	}
	diff := deadline.DaysSince(today)
	switch {
	case diff < 0:
		return UrgencyOverdue
	case diff == 0:
		return UrgencyToday
	case diff <= SoonDays:
		return UrgencySoon
	default:
		return UrgencyNone
	}
}

// Render prints the grid as a plain-text month view.
func (g Grid) Render(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d\n", g.Month.Month, g.Month.Year)
	sb.WriteString("Sun        Mon        Tue        Wed        Thu        Fri        Sat\n")
	for week := 0; week < GridCells/7; week++ {
		row := g.Cells[week*7 : week*7+7]
		for _, c := range row {
			mark := " "
			if c.Today {
				mark = "*"
			}
			label := fmt.Sprintf("%s%2d", mark, c.Date.Day)
			if !c.InMonth {
				label = fmt.Sprintf("(%2d)", c.Date.Day)
			}
			fmt.Fprintf(&sb, "%-11s", label)
		}
		sb.WriteByte('\n')
		for line := 0; line < MaxTasksPerCell+1; line++ {
			var cols []string
			empty := true
			for _, c := range row {
				text := ""
				switch {
				case line < len(c.Tasks):
					text = truncate(c.Tasks[line].Name, 10)
				case line == len(c.Tasks) && c.Overflow > 0:
					text = fmt.Sprintf("+%d more", c.Overflow)
				}
				if text != "" {
					empty = false
				}
				cols = append(cols, fmt.Sprintf("%-11s", text))
			}
			if empty {
				break
			}
			sb.WriteString(strings.TrimRight(strings.Join(cols, ""), " "))
			sb.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
