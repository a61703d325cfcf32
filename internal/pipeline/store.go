package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRunID is returned for run ids that are not a single path element.
var ErrInvalidRunID = errors.New("invalid run id")

// Store manages run reports and checkpoints on disk, one directory per run.
type Store struct {
	baseDir string // defaults to ~/.fixfactory/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// runDir returns the directory of a run. The id must name a direct child of
// the store, so ids like "", "..", "a/b" are rejected.
func (s *Store) runDir(runID string) (string, error) {
	if runID == "" || runID == "." || runID == ".." || runID != filepath.Base(runID) || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return filepath.Join(s.baseDir, runID), nil
}

func (s *Store) runFile(runID, name string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// SaveCheckpoint records the next stage and current state of a run.
func (s *Store) SaveCheckpoint(cp *Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint has no run id")
	}
	path, err := s.runFile(cp.RunID, "checkpoint.json")
	if err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC()
	if err := WriteJSON(path, cp); err != nil {
		return fmt.Errorf("write checkpoint.json: %w", err)
	}
	return nil
}

// GetCheckpoint reads the checkpoint for a run.
func (s *Store) GetCheckpoint(runID string) (*Checkpoint, error) {
	path, err := s.runFile(runID, "checkpoint.json")
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := ReadJSON(path, &cp); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no checkpoint for run %s", runID)
		}
		return nil, err
	}
	return &cp, nil
}

// SaveReport writes the final report for a run.
func (s *Store) SaveReport(r *RunReport) error {
	if r.RunID == "" {
		return fmt.Errorf("report has no run id")
	}
	path, err := s.runFile(r.RunID, "report.json")
	if err != nil {
		return err
	}
	if err := WriteJSON(path, r); err != nil {
		return fmt.Errorf("write report.json: %w", err)
	}
	return nil
}

// GetReport reads the final report for a run.
func (s *Store) GetReport(runID string) (*RunReport, error) {
	path, err := s.runFile(runID, "report.json")
	if err != nil {
		return nil, err
	}
	var r RunReport
	if err := ReadJSON(path, &r); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &r, nil
}

// ListReports returns every stored report, oldest first.
// Pass "" for statusFilter to return all of them.
func (s *Store) ListReports(statusFilter string) ([]RunReport, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var reports []RunReport
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.GetReport(entry.Name())
		if err != nil {
			continue // in-flight or broken run
		}
		if statusFilter == "" || r.Status == statusFilter {
			reports = append(reports, *r)
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})
	return reports, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(runID string) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", runID)
	}
	return os.RemoveAll(dir)
}
