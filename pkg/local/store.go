// Package local persists the task list as one JSON document in a key/value
// slot on this machine.
package local

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// TasksKey is the slot key holding the task list.
const TasksKey = "tasks"

// Slot is a persistent key/value cell. Put replaces the value wholesale;
// a failed Put leaves the previous value intact.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store reads and writes the task list stored under TasksKey.
type Store struct {
	slot Slot
}

func NewStore(slot Slot) *Store {
	return &Store{slot: slot}
}

// Load returns the stored list. An absent or empty slot yields an empty list.
func (s *Store) Load(ctx context.Context) ([]model.Task, error) {
	data, ok, err := s.slot.Get(ctx, TasksKey)
	if err != nil {
		return nil, fmt.Errorf("read local tasks: %w", err)
	}
	tasks := []model.Task{}
	if !ok || len(data) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode local tasks: %w", err)
	}
	if tasks == nil {
		// a stored "null"
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Replace overwrites the stored list with tasks.
func (s *Store) Replace(ctx context.Context, tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode local tasks: %w", err)
	}
	if err := s.slot.Put(ctx, TasksKey, data); err != nil {
		return fmt.Errorf("write local tasks: %w", err)
	}
	return nil
}
