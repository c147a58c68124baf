package remote

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

func TestDocumentToTask(t *testing.T) {
	deadline := "2024-05-10"
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	d := document{
		Name:       "review",
		Priority:   "medium",
		Deadline:   &deadline,
		Progress:   55,
		InProgress: true,
		CreatedAt:  &created,
	}

	task, err := d.task("doc123")
	require.NoError(t, err)
	assert.Equal(t, "doc123", task.ID)
	assert.Equal(t, model.CategoryWork, task.Category, "missing category defaults to work")
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.May, Day: 10}, *task.Deadline)
	assert.Equal(t, 55, task.Progress)
	assert.Equal(t, created, *task.CreatedAt)
	assert.Nil(t, task.UpdatedAt)

	empty := ""
	d.Deadline = &empty
	task, err = d.task("doc123")
	require.NoError(t, err)
	assert.Nil(t, task.Deadline)

	bad := "tomorrow"
	d.Deadline = &bad
	_, err = d.task("doc123")
	assert.Error(t, err)
}

func TestFieldsAndUpdates(t *testing.T) {
	task := model.Task{ID: "task_1_abc", Category: model.CategoryPrivate, Name: "n", Priority: model.PriorityLow, Progress: 10}

	f := fields(task)
	assert.NotContains(t, f, "id")
	assert.Nil(t, f[fieldDeadline])
	assert.Equal(t, "private", f[fieldCategory])

	d := civil.Date{Year: 2024, Month: time.June, Day: 3}
	task.Deadline = &d
	ups := updates(task)
	paths := map[string]any{}
	for _, u := range ups {
		paths[u.Path] = u.Value
	}
	assert.Equal(t, "2024-06-03", paths[fieldDeadline])
	assert.Equal(t, firestore.ServerTimestamp, paths[fieldUpdatedAt])
	assert.NotContains(t, paths, fieldCreatedAt)
}

func TestSubscriptionStopIsIdempotent(t *testing.T) {
	calls := 0
	sub := NewSubscription(make(chan Snapshot), func() { calls++ })
	sub.Stop()
	sub.Stop()
	assert.Equal(t, 1, calls)
}
