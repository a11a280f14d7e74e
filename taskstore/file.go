package taskstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is a Store implementation that keeps one JSON document per task
// under a directory. Writes are atomic (temp file + rename), so a crash
// mid-save never leaves a torn checkpoint behind.
type File struct {
	dir string
}

// NewFile creates a file-backed store rooted at dir.
// The directory is created if it does not exist.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("taskstore: dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("taskstore: create dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *File) Dir() string { return s.dir }

func (s *File) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

func validateTaskID(taskID string) error {
	if taskID == "" {
		return errors.New("taskstore: task id is empty")
	}
	if strings.ContainsAny(taskID, "/\\") || taskID == "." || taskID == ".." {
		return fmt.Errorf("taskstore: invalid task id %q", taskID)
	}
	return nil
}

func (s *File) Save(_ context.Context, taskID string, data []byte) error {
	if err := validateTaskID(taskID); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, taskID+".*.tmp")
	if err != nil {
		return fmt.Errorf("taskstore: save %s: %w", taskID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("taskstore: save %s: %w", taskID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("taskstore: save %s: %w", taskID, err)
	}
	if err := os.Rename(tmpName, s.path(taskID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("taskstore: save %s: %w", taskID, err)
	}
	return nil
}

func (s *File) Load(_ context.Context, taskID string) ([]byte, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: load %s: %w", taskID, err)
	}
	return data, nil
}

func (s *File) Delete(_ context.Context, taskID string) error {
	if err := validateTaskID(taskID); err != nil {
		return err
	}
	err := os.Remove(s.path(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *File) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("taskstore: list: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *File) Close() error { return nil }
