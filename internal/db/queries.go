package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Run represents a row in the runs table.
type Run struct {
	RunID             string
	RepoURL           string
	TeamName          string
	LeaderName        string
	Branch            string
	Status            string
	FinalStatus       string
	Language          string
	InstallCmd        string
	TestCmd           string
	TestScore         int
	Iterations        int
	TotalFixes        int
	TotalFailures     int
	ScoreBase         int
	SpeedBonus        int
	EfficiencyPenalty int
	ScoreFinal        int
	DurationMs        int64
	Published         bool
	CommitHash        string
	PullRequestURL    string
	StartedAt         string
	FinishedAt        string
}

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Stage     string
	Iteration int
	Detail    string
	Timestamp string
}

// SaveReport stores a finished run and its fix records in one transaction.
// Saving the same run again replaces the earlier rows.
func (d *DB) SaveReport(r *pipeline.RunReport) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(d.Rebind(`DELETE FROM fix_records WHERE run_id = ?`), r.RunID); err != nil {
		return fmt.Errorf("clear fix records: %w", err)
	}
	if _, err := tx.Exec(d.Rebind(`DELETE FROM runs WHERE run_id = ?`), r.RunID); err != nil {
		return fmt.Errorf("clear run: %w", err)
	}

	st := r.State
	_, err = tx.Exec(d.Rebind(`INSERT INTO runs (
		run_id, repo_url, team_name, leader_name, branch, status, final_status,
		language, install_cmd, test_cmd, test_score, iterations, total_fixes, total_failures,
		score_base, speed_bonus, efficiency_penalty, score_final, duration_ms,
		published, commit_hash, pr_url, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, st.RepoURL, st.TeamName, st.LeaderName, r.Summary.Branch, r.Status, string(st.FinalStatus),
		st.Language, st.InstallCmd, st.TestCmd, st.TestScore, st.Iterations, r.Summary.TotalFixes, r.Summary.TotalFailures,
		r.Score.Base, r.Score.SpeedBonus, r.Score.EfficiencyPenalty, r.Score.Final, r.Duration.Milliseconds(),
		r.Published, r.CommitHash, r.PullRequestURL, formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insertFix := d.Rebind(`INSERT INTO fix_records (run_id, seq, file, bug_type, line, commit_msg, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, f := range st.Fixes {
		if _, err := tx.Exec(insertFix, r.RunID, f.ID, f.File, string(f.Type), f.Line, f.Commit, string(f.Status), formatTime(f.CreatedAt)); err != nil {
			return fmt.Errorf("insert fix record %d: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, repo_url, team_name, leader_name, branch, status, final_status,
	language, install_cmd, test_cmd, test_score, iterations, total_fixes, total_failures,
	score_base, speed_bonus, efficiency_penalty, score_final, duration_ms,
	published, commit_hash, pr_url, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var language, installCmd, testCmd, commit, pr sql.NullString
	err := s.Scan(&r.RunID, &r.RepoURL, &r.TeamName, &r.LeaderName, &r.Branch, &r.Status, &r.FinalStatus,
		&language, &installCmd, &testCmd, &r.TestScore, &r.Iterations, &r.TotalFixes, &r.TotalFailures,
		&r.ScoreBase, &r.SpeedBonus, &r.EfficiencyPenalty, &r.ScoreFinal, &r.DurationMs,
		&r.Published, &commit, &pr, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.Language = language.String
	r.InstallCmd = installCmd.String
	r.TestCmd = testCmd.String
	r.CommitHash = commit.String
	r.PullRequestURL = pr.String
	return &r, nil
}

// GetRun returns a stored run, or nil when no row exists.
func (d *DB) GetRun(runID string) (*Run, error) {
	row := d.conn.QueryRow(d.Rebind(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`), runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first. statusFilter "" matches every status;
// limit <= 0 means no limit.
func (d *DB) ListRuns(statusFilter string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if statusFilter != "" {
		query += ` WHERE status = ?`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetFixRecords returns the fix history of a run in the order it was applied.
func (d *DB) GetFixRecords(runID string) ([]pipeline.FixRecord, error) {
	rows, err := d.conn.Query(d.Rebind(
		`SELECT seq, file, bug_type, line, commit_msg, status, created_at
		 FROM fix_records WHERE run_id = ? ORDER BY seq ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("get fix records: %w", err)
	}
	defer rows.Close()

	var fixes []pipeline.FixRecord
	for rows.Next() {
		var f pipeline.FixRecord
		var bugType, status, created string
		var commit sql.NullString
		if err := rows.Scan(&f.ID, &f.File, &bugType, &f.Line, &commit, &status, &created); err != nil {
			return nil, fmt.Errorf("scan fix record: %w", err)
		}
		f.Type = pipeline.BugType(bugType)
		f.Status = pipeline.FixStatus(status)
		f.Commit = commit.String
		f.CreatedAt, _ = time.Parse(timeFormat, created)
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID, event, stage string, iteration int, detail string) error {
	_, err := d.conn.Exec(
		d.Rebind(`INSERT INTO run_events (run_id, event, stage, iteration, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)`),
		runID, event, stage, iteration, detail, d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRunEvents returns all events for a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(d.Rebind(
		`SELECT id, run_id, event, stage, iteration, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var stage, detail sql.NullString
		var iteration sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &stage, &iteration, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Stage = stage.String
		e.Iteration = int(iteration.Int64)
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteRun removes a run, its fix records and its events.
func (d *DB) DeleteRun(runID string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM fix_records WHERE run_id = ?`,
		`DELETE FROM run_events WHERE run_id = ?`,
		`DELETE FROM runs WHERE run_id = ?`,
	} {
		if _, err := tx.Exec(d.Rebind(q), runID); err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}
