// Package sink provides durable snapshot destinations for the persistent
// store: a local file, a bolt bucket, a redis hash and an S3 object. All
// of them write the whole flat path -> value mapping per save.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File persists snapshots as a JSON file. Saves go through a temp file and
// rename so a crashed save never leaves a torn snapshot behind.
type File struct {
	Path string
}

// NewFile creates a file sink at the given path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Save writes the snapshot.
func (f *File) Save(_ context.Context, snapshot map[string]any) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".state-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Load reads the last snapshot. A missing file is an empty snapshot.
func (f *File) Load(_ context.Context) (map[string]any, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]any)
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
