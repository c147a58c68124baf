package model

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestNewLocalID(t *testing.T) {
	now := time.UnixMilli(1714521600000)
	id := NewLocalID(now)

	re := regexp.MustCompile(`^task_1714521600000_[0-9a-z]{9}$`)
	if !re.MatchString(id) {
		t.Fatalf("unexpected id format: %s", id)
	}
	if !IsLocalID(id) {
		t.Errorf("expected %s to be a local id", id)
	}
	if IsLocalID("k3JdQ0aZ1x") {
		t.Errorf("document ids must not look local")
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewLocalID(now)
		if seen[id] {
			t.Fatalf("duplicate id after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}

func TestNormalize(t *testing.T) {
	task := Task{Name: "  write report ", Memo: " draft ", Progress: 140}
	task.Normalize()

	if task.Category != CategoryWork {
		t.Errorf("expected default category work, got %q", task.Category)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("expected default priority medium, got %q", task.Priority)
	}
	if task.Name != "write report" || task.Memo != "draft" {
		t.Errorf("expected trimmed fields, got %q / %q", task.Name, task.Memo)
	}
	if task.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", task.Progress)
	}

	task.Progress = -5
	task.Normalize()
	if task.Progress != 0 {
		t.Errorf("expected progress clamped to 0, got %d", task.Progress)
	}
}

func TestValidate(t *testing.T) {
	ok := Task{Name: "a", Priority: PriorityLow, Category: CategoryPrivate}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Task{
		{Name: " ", Priority: PriorityLow, Category: CategoryWork},
		{Name: "a", Priority: "urgent", Category: CategoryWork},
		{Name: "a", Priority: PriorityHigh, Category: "hobby"},
		{Name: "a", Priority: PriorityHigh, Category: CategoryWork, Deadline: &civil.Date{Year: 2024, Month: 2, Day: 30}},
	}
	for i, task := range bad {
		if err := task.Validate(); !errors.Is(err, ErrInvalidTask) {
			t.Errorf("case %d: expected ErrInvalidTask, got %v", i, err)
		}
	}
}

func TestTaskJSON(t *testing.T) {
	d := civil.Date{Year: 2024, Month: time.May, Day: 1}
	task := Task{ID: "task_1_abc", Category: CategoryWork, Name: "ship", Priority: PriorityHigh, Deadline: &d, Progress: 30}

	b, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"deadline":"2024-05-01"`) {
		t.Errorf("expected ISO deadline, got %s", s)
	}
	if !strings.Contains(s, `"inProgress":false`) {
		t.Errorf("expected inProgress field, got %s", s)
	}
	if strings.Contains(s, "createdAt") {
		t.Errorf("local records must not carry timestamps, got %s", s)
	}

	var noDeadline Task
	if err := json.Unmarshal([]byte(`{"id":"x","name":"n","priority":"low","deadline":null}`), &noDeadline); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if noDeadline.HasDeadline() {
		t.Errorf("expected no deadline")
	}
}

func TestClone(t *testing.T) {
	d := civil.Date{Year: 2024, Month: time.May, Day: 1}
	orig := Task{Name: "a", Deadline: &d}
	c := orig.Clone()
	c.Deadline.Day = 9
	if orig.Deadline.Day != 1 {
		t.Errorf("clone shares deadline pointer with original")
	}
}

func TestParseDeadline(t *testing.T) {
	d, err := ParseDeadline("")
	if err != nil || d != nil {
		t.Fatalf("expected nil deadline for empty input, got %v, %v", d, err)
	}
	d, err = ParseDeadline("2024-05-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-05-10" {
		t.Errorf("unexpected date %s", d)
	}
	if _, err := ParseDeadline("10/05/2024"); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask, got %v", err)
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Errorf("expected high < medium < low")
	}
	if _, err := ParsePriority("HIGH"); err != nil {
		t.Errorf("expected case-insensitive parse, got %v", err)
	}
	if _, err := ParseCategory(""); err == nil {
		t.Errorf("expected error for empty category")
	}
}
