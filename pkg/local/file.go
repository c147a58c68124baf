package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/natefinch/atomic"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileSlot keeps each key in its own <key>.json file under a directory.
// Writes go through a temp file and rename, so readers never observe a
// partially written list.
type FileSlot struct {
	Dir string
}

func NewFileSlot(dir string) *FileSlot {
	return &FileSlot{Dir: dir}
}

func (s *FileSlot) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid slot key %q", key)
	}
	return filepath.Join(s.Dir, key+".json"), nil
}

func (s *FileSlot) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileSlot) Put(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create slot directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(value)); err != nil {
		return err
	}
	// atomic.WriteFile keeps the temp file's mode on new files.
	return os.Chmod(path, 0600)
}
