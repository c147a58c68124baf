package remote

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Document field names. They match the JSON names of model.Task.
const (
	fieldCategory   = "category"
	fieldName       = "name"
	fieldPriority   = "priority"
	fieldDeadline   = "deadline"
	fieldProgress   = "progress"
	fieldMemo       = "memo"
	fieldInProgress = "inProgress"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
)

// document is the stored shape of a task. The id is the document's own id.
type document struct {
	Category   string     `firestore:"category"`
	Name       string     `firestore:"name"`
	Priority   string     `firestore:"priority"`
	Deadline   *string    `firestore:"deadline"`
	Progress   int64      `firestore:"progress"`
	Memo       string     `firestore:"memo"`
	InProgress bool       `firestore:"inProgress"`
	CreatedAt  *time.Time `firestore:"createdAt"`
	UpdatedAt  *time.Time `firestore:"updatedAt"`
}

func (d document) task(id string) (model.Task, error) {
	t := model.Task{
		ID:         id,
		Category:   model.Category(d.Category),
		Name:       d.Name,
		Priority:   model.Priority(d.Priority),
		Progress:   int(d.Progress),
		Memo:       d.Memo,
		InProgress: d.InProgress,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if t.Category == "" {
		t.Category = model.CategoryWork
	}
	if d.Deadline != nil && *d.Deadline != "" {
		dl, err := civil.ParseDate(*d.Deadline)
		if err != nil {
			return model.Task{}, fmt.Errorf("document %s: bad deadline %q: %w", id, *d.Deadline, err)
		}
		t.Deadline = &dl
	}
	return t, nil
}

func deadlineValue(t model.Task) any {
	if t.Deadline == nil {
		return nil
	}
	return t.Deadline.String()
}

// fields are the user-editable fields of t, as written on insert.
func fields(t model.Task) map[string]any {
	return map[string]any{
		fieldCategory:   string(t.Category),
		fieldName:       t.Name,
		fieldPriority:   string(t.Priority),
		fieldDeadline:   deadlineValue(t),
		fieldProgress:   t.Progress,
		fieldMemo:       t.Memo,
		fieldInProgress: t.InProgress,
	}
}

// updates are the field-path updates for t; fields not listed stay as stored.
func updates(t model.Task) []firestore.Update {
	return []firestore.Update{
		{Path: fieldCategory, Value: string(t.Category)},
		{Path: fieldName, Value: t.Name},
		{Path: fieldPriority, Value: string(t.Priority)},
		{Path: fieldDeadline, Value: deadlineValue(t)},
		{Path: fieldProgress, Value: t.Progress},
		{Path: fieldMemo, Value: t.Memo},
		{Path: fieldInProgress, Value: t.InProgress},
		{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
	}
}
