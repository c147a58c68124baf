package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirebaseConfigured(t *testing.T) {
	tests := []struct {
		name string
		fb   Firebase
		want bool
	}{
		{"empty", Firebase{}, false},
		{"placeholders", Firebase{APIKey: PlaceholderAPIKey, ProjectID: PlaceholderProjectID}, false},
		{"placeholder key", Firebase{APIKey: PlaceholderAPIKey, ProjectID: "my-project"}, false},
		{"placeholder project", Firebase{APIKey: "AIza123", ProjectID: PlaceholderProjectID}, false},
		{"missing project", Firebase{APIKey: "AIza123"}, false},
		{"real", Firebase{APIKey: "AIza123", ProjectID: "my-project"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fb.Configured())
		})
	}
}

func TestParseWithComments(t *testing.T) {
	data := []byte(`{
		// remote backend
		"firebase": {"apiKey": "AIza123", "projectId": "tasks-1",},
		"storage": {"driver": "sqlite"},
		"calendar": {"syncSchedule": "@every 15m"},
	}`)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, cfg.Firebase.Configured())
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, DefaultCalendar, cfg.Calendar.Name)
	assert.Equal(t, "@every 15m", cfg.Calendar.SyncSchedule)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse([]byte(`{"storage": {"driver": "redis"}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"firebase": {"apiKey": "x"}, "unknown": 1}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TASKBOARD_PROJECT_ID", "")
	t.Setenv("TASKBOARD_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.False(t, cfg.Firebase.Configured())
	assert.Equal(t, StorageFile, cfg.Storage.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"firebase": {"apiKey": "YOUR_API_KEY", "projectId": "YOUR_PROJECT_ID"}}`), 0600))

	t.Setenv("TASKBOARD_API_KEY", "AIza999")
	t.Setenv("TASKBOARD_PROJECT_ID", "env-project")
	t.Setenv("TASKBOARD_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Firebase.Configured())
	assert.Equal(t, "env-project", cfg.Firebase.ProjectID)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Calendar.Name = "Work"
	cfg.Firebase = Firebase{APIKey: "k", ProjectID: "p"}

	require.NoError(t, Save(cfg, path))

	t.Setenv("TASKBOARD_PROJECT_ID", "")
	t.Setenv("TASKBOARD_API_KEY", "")
	t.Setenv("TASKBOARD_STORAGE", "")
	t.Setenv("TASKBOARD_ADDR", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStoragePath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/cfg", "data"), cfg.StoragePath("/cfg"))

	cfg.Storage.Driver = StorageSQLite
	assert.Equal(t, filepath.Join("/cfg", "tasks.db"), cfg.StoragePath("/cfg"))

	cfg.Storage.Path = "/tmp/tb"
	assert.Equal(t, "/tmp/tb", cfg.StoragePath("/cfg"))
}
