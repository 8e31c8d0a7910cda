package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements Store on the filesystem.
// Records live in <baseDir>/fits/<id>/fit.json next to an optional trace.jsonl.
//
// Writes go through temp file + rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// FitDir is the directory holding a fit's record and trace.
func (fs *FSStore) FitDir(id string) string {
	return fitDir(fs.baseDir, id)
}

func fitDir(baseDir, id string) string {
	return filepath.Join(baseDir, "fits", id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.FitDir(id), "fit.json")
}

// SaveFit validates and atomically writes a record.
func (fs *FSStore) SaveFit(record *FitRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.FitDir(record.ID), 0755); err != nil {
		return fmt.Errorf("failed to create fit directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize fit: %w", err)
	}

	finalPath := fs.recordPath(record.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp fit file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename fit file: %w", err)
	}

	slog.Debug("Fit saved", "id", record.ID, "path", finalPath)
	return nil
}

// LoadFit reads the record with the given ID.
func (fs *FSStore) LoadFit(id string) (*FitRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}

	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read fit file: %w", err)
	}

	var record FitRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize fit: %w", err)
	}

	slog.Debug("Fit loaded", "id", id, "path", path)
	return &record, nil
}

// ListFits returns metadata for all readable records, newest first.
// Unreadable records are logged and skipped.
func (fs *FSStore) ListFits() ([]FitInfo, error) {
	fitsDir := filepath.Join(fs.baseDir, "fits")

	entries, err := os.ReadDir(fitsDir)
	if os.IsNotExist(err) {
		return []FitInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read fits directory: %w", err)
	}

	infos := []FitInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if _, err := os.Stat(fs.recordPath(id)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadFit(id)
		if err != nil {
			slog.Warn("Failed to load fit for listing", "id", id, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed fits", "count", len(infos))
	return infos, nil
}

// DeleteFit removes a record and its trace.
func (fs *FSStore) DeleteFit(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	dir := fs.FitDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat fit directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove fit directory: %w", err)
	}

	slog.Debug("Fit deleted", "id", id, "path", dir)
	return nil
}
