package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIndex_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	idx, err := NewEventIndex(path)
	require.NoError(t, err)
	assert.Empty(t, idx.Get("task_1"))

	idx.Set("task_1", "evt_a")
	idx.Set("task_2", "evt_b")
	require.NoError(t, idx.Save())

	reopened, err := NewEventIndex(path)
	require.NoError(t, err)
	assert.Equal(t, "evt_a", reopened.Get("task_1"))
	assert.Equal(t, []string{"task_1", "task_2"}, reopened.TaskIDs())

	reopened.Remove("task_1")
	reopened.Remove("missing")
	require.NoError(t, reopened.Save())

	again, err := NewEventIndex(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"task_2"}, again.TaskIDs())
}

func TestEventIndex_SaveSkipsCleanIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	idx, err := NewEventIndex(path)
	require.NoError(t, err)

	require.NoError(t, idx.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "clean index must not create a file")

	idx.Set("task_1", "evt_a")
	idx.Set("task_1", "evt_a")
	require.NoError(t, idx.Save())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestEventIndex_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0600))

	_, err := NewEventIndex(path)
	assert.Error(t, err)
}
