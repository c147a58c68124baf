package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

const (
	xdgAppName = "taskboard"
	configFile = "config.json"

	// Placeholders shipped in the sample config. A config still carrying
	// them is treated as absent.
	PlaceholderAPIKey    = "YOUR_API_KEY"
	PlaceholderProjectID = "YOUR_PROJECT_ID"

	DefaultCalendar = "Tasks"
	DefaultAddr     = "127.0.0.1:8080"
)

// Storage drivers for local mode.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Firebase holds the connection parameters of the remote document store.
type Firebase struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain,omitempty"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket,omitempty"`
	MessagingSenderID string `json:"messagingSenderId,omitempty"`
	AppID             string `json:"appId,omitempty"`
}

// Configured reports whether remote mode may be used: the api key and the
// project id must be present and not the sample placeholders.
func (f Firebase) Configured() bool {
	key := strings.TrimSpace(f.APIKey)
	project := strings.TrimSpace(f.ProjectID)
	return key != "" && project != "" &&
		key != PlaceholderAPIKey && project != PlaceholderProjectID
}

type Storage struct {
	Driver string `json:"driver"`
	// Path is a directory for the file driver and a database file for sqlite.
	Path string `json:"path,omitempty"`
}

type Server struct {
	Addr string `json:"addr"`
}

type Calendar struct {
	Name string `json:"name"`
	// SyncSchedule is a cron spec for the periodic export run by serve.
	// Empty disables it.
	SyncSchedule string `json:"syncSchedule,omitempty"`
}

type Config struct {
	Firebase Firebase `json:"firebase"`
	Storage  Storage  `json:"storage"`
	Server   Server   `json:"server"`
	Calendar Calendar `json:"calendar"`
	LogLevel string   `json:"logLevel,omitempty"`
}

// Dir returns ~/.config/taskboard.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config at path (the default location when empty). The file
// may contain comments and trailing commas. A missing file yields defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv(os.Getenv)
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a JSON-with-comments document and fills in defaults.
func Parse(data []byte) (*Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageFile
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = DefaultCalendar
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TASKBOARD_PROJECT_ID"); v != "" {
		c.Firebase.ProjectID = v
	}
	if v := getenv("TASKBOARD_API_KEY"); v != "" {
		c.Firebase.APIKey = v
	}
	if v := getenv("TASKBOARD_STORAGE"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("TASKBOARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate rejects settings that cannot be acted on.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q (want %q or %q)", c.Storage.Driver, StorageFile, StorageSQLite)
	}
	return nil
}

// StoragePath resolves the local storage location. Without an explicit
// path it lives in dir, the directory holding the config file.
func (c *Config) StoragePath(dir string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Driver == StorageSQLite {
		return filepath.Join(dir, "tasks.db")
	}
	return filepath.Join(dir, "data")
}

// Save writes cfg to path (the default location when empty).
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
