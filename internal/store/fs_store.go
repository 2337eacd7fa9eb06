package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements the Store interface on the filesystem.
// Reports are stored in <baseDir>/reports/<id>/report.json, next to an
// optional trace.jsonl.
//
// Writes go through a temp file and rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// ReportDir returns the directory holding a report and its artifacts.
func (fs *FSStore) ReportDir(id string) string {
	return reportDir(fs.baseDir, id)
}

func reportDir(baseDir, id string) string {
	return filepath.Join(baseDir, "reports", id)
}

func (fs *FSStore) reportPath(id string) string {
	return filepath.Join(fs.ReportDir(id), "report.json")
}

// SaveReport atomically saves a report under its ID.
func (fs *FSStore) SaveReport(report *Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if err := report.Validate(); err != nil {
		return err
	}

	dir := fs.ReportDir(report.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tempPath := fs.reportPath(report.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp report file: %w", err)
	}

	finalPath := fs.reportPath(report.ID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename report file: %w", err)
	}

	slog.Debug("Report saved", "id", report.ID, "path", finalPath)
	return nil
}

// LoadReport retrieves the report with the given ID.
func (fs *FSStore) LoadReport(id string) (*Report, error) {
	if id == "" {
		return nil, fmt.Errorf("report id cannot be empty")
	}

	path := fs.reportPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to deserialize report: %w", err)
	}

	slog.Debug("Report loaded", "id", id, "path", path)
	return &report, nil
}

// ListReports returns metadata for all readable reports, newest first.
// Directories without a report.json or with a corrupt one are skipped.
func (fs *FSStore) ListReports() ([]ReportInfo, error) {
	reportsDir := filepath.Join(fs.baseDir, "reports")

	entries, err := os.ReadDir(reportsDir)
	if os.IsNotExist(err) {
		return []ReportInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	infos := []ReportInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if _, err := os.Stat(fs.reportPath(id)); os.IsNotExist(err) {
			continue
		}

		report, err := fs.LoadReport(id)
		if err != nil {
			slog.Warn("Failed to load report for listing", "id", id, "error", err)
			continue
		}
		infos = append(infos, report.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	slog.Debug("Listed reports", "count", len(infos))
	return infos, nil
}

// DeleteReport removes the report directory with all artifacts.
func (fs *FSStore) DeleteReport(id string) error {
	if id == "" {
		return fmt.Errorf("report id cannot be empty")
	}

	dir := fs.ReportDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat report directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove report directory: %w", err)
	}

	slog.Debug("Report deleted", "id", id, "path", dir)
	return nil
}
