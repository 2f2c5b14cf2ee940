package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// LocalDir writes bundles as pretty-printed JSON files under a directory.
// The report and export are assembled from data the client already fetched;
// no extra network calls happen here.
type LocalDir struct {
	Dir string
}

func NewLocalDir(dir string) (*LocalDir, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalDir{Dir: dir}, nil
}

func (l *LocalDir) WriteJSON(_ context.Context, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(l.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
