// Package analytics aggregates persisted runs into summary statistics.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// Summary holds headline numbers over a set of runs.
type Summary struct {
	Runs          int     `json:"runs"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	NoTests       int     `json:"no_tests"`
	Published     int     `json:"published"`
	PassRate      float64 `json:"pass_rate_pct"`
	AvgScore      float64 `json:"avg_score"`
	AvgIterations float64 `json:"avg_iterations"`
	AvgFixes      float64 `json:"avg_fixes"`
}

// sinceClause appends a started_at filter when since is set.
func sinceClause(query, column, since string, args []any) (string, []any) {
	if since == "" {
		return query, args
	}
	return query + ` AND ` + column + ` >= ?`, append(args, since)
}

// QuerySummary returns run counts, pass rate and averages. since is a
// "YYYY-MM-DD HH:MM:SS" lower bound on started_at, or "" for all runs.
func QuerySummary(database DB, since string) (*Summary, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'PASSED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'NO_TESTS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN published THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(score_final), 0),
			COALESCE(AVG(iterations), 0),
			COALESCE(AVG(total_fixes), 0)
		FROM runs
		WHERE 1 = 1`
	query, args := sinceClause(query, "started_at", since, nil)

	var s Summary
	var avgScore, avgIter, avgFixes float64
	err := database.Conn().QueryRow(database.Rebind(query), args...).Scan(
		&s.Runs, &s.Passed, &s.Failed, &s.NoTests, &s.Published, &avgScore, &avgIter, &avgFixes)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	s.PassRate = pct(s.Passed, s.Runs)
	s.AvgScore = round1(avgScore)
	s.AvgIterations = round1(avgIter)
	s.AvgFixes = round1(avgFixes)
	return &s, nil
}

// BugTypeCount holds how often a bug type was reported.
type BugTypeCount struct {
	BugType string  `json:"bug_type"`
	Count   int     `json:"count"`
	Fixed   int     `json:"fixed"`
	Failed  int     `json:"failed"`
	Share   float64 `json:"share_pct"`
}

// QueryBugTypes returns the bug-type histogram over all fix records, most
// frequent first.
func QueryBugTypes(database DB, since string) ([]BugTypeCount, error) {
	query := `
		SELECT f.bug_type,
			COUNT(*),
			SUM(CASE WHEN f.status = 'Fixed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN f.status = 'Failed' THEN 1 ELSE 0 END)
		FROM fix_records f
		JOIN runs r ON r.run_id = f.run_id
		WHERE f.bug_type != ''`
	query, args := sinceClause(query, "r.started_at", since, nil)
	query += ` GROUP BY f.bug_type`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query bug types: %w", err)
	}
	defer rows.Close()

	var results []BugTypeCount
	total := 0
	for rows.Next() {
		var b BugTypeCount
		if err := rows.Scan(&b.BugType, &b.Count, &b.Fixed, &b.Failed); err != nil {
			return nil, fmt.Errorf("scan bug type: %w", err)
		}
		total += b.Count
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Share = pct(results[i].Count, total)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].BugType < results[j].BugType
	})
	return results, nil
}

// DurationStats holds run duration statistics in seconds.
type DurationStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
	Fast  float64 `json:"under_5m_pct"`
}

// QueryDurations returns average and percentile run durations.
func QueryDurations(database DB, since string) (*DurationStats, error) {
	query := `SELECT duration_ms FROM runs WHERE 1 = 1`
	query, args := sinceClause(query, "started_at", since, nil)

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query durations: %w", err)
	}
	defer rows.Close()

	var secs []float64
	fast := 0
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		s := float64(ms) / 1000
		if s < 300 {
			fast++
		}
		secs = append(secs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Float64s(secs)
	return &DurationStats{
		Count: len(secs),
		Avg:   avg(secs),
		P50:   percentile(secs, 50),
		P95:   percentile(secs, 95),
		Fast:  pct(fast, len(secs)),
	}, nil
}

// StageFailure counts fatal failures of one stage.
type StageFailure struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// QueryStageFailures returns how often each stage ended a run fatally.
func QueryStageFailures(database DB, since string) ([]StageFailure, error) {
	query := `SELECT stage, COUNT(*) FROM run_events WHERE event = 'failed' AND stage != ''`
	query, args := sinceClause(query, "timestamp", since, nil)
	query += ` GROUP BY stage ORDER BY COUNT(*) DESC, stage`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage failures: %w", err)
	}
	defer rows.Close()

	var results []StageFailure
	for rows.Next() {
		var f StageFailure
		if err := rows.Scan(&f.Stage, &f.Count); err != nil {
			return nil, fmt.Errorf("scan stage failure: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// TeamStats holds per-team results.
type TeamStats struct {
	Team      string  `json:"team"`
	Runs      int     `json:"runs"`
	PassRate  float64 `json:"pass_rate_pct"`
	BestScore int     `json:"best_score"`
	AvgScore  float64 `json:"avg_score"`
}

// QueryTeams returns results per team, best score first.
func QueryTeams(database DB, since string) ([]TeamStats, error) {
	query := `
		SELECT team_name, COUNT(*),
			SUM(CASE WHEN status = 'PASSED' THEN 1 ELSE 0 END),
			MAX(score_final), AVG(score_final)
		FROM runs
		WHERE 1 = 1`
	query, args := sinceClause(query, "started_at", since, nil)
	query += ` GROUP BY team_name`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var results []TeamStats
	for rows.Next() {
		var t TeamStats
		var passed int
		var avgScore float64
		if err := rows.Scan(&t.Team, &t.Runs, &passed, &t.BestScore, &avgScore); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.PassRate = pct(passed, t.Runs)
		t.AvgScore = round1(avgScore)
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].BestScore != results[j].BestScore {
			return results[i].BestScore > results[j].BestScore
		}
		return results[i].Team < results[j].Team
	})
	return results, nil
}

// --- helpers ---

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return round1(sum / float64(len(values)))
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return round1(sorted[lower])
	}
	weight := rank - float64(lower)
	return round1(sorted[lower]*(1-weight) + sorted[upper]*weight)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
