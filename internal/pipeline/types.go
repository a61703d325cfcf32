package pipeline

import "time"

// Status is the pass/fail verdict of the most recent test run.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

// StatusNoTests is the reported status when the analyzer found no usable test suite.
// It is never stored in RunState.FinalStatus.
const StatusNoTests = "NO_TESTS"

// BugType classifies a fix proposed by the repair oracle.
type BugType string

const (
	BugLinting     BugType = "LINTING"
	BugSyntax      BugType = "SYNTAX"
	BugLogic       BugType = "LOGIC"
	BugTypeError   BugType = "TYPE_ERROR"
	BugImport      BugType = "IMPORT"
	BugIndentation BugType = "INDENTATION"
)

// BugTypes lists every bug type the oracle may report.
var BugTypes = []BugType{BugLinting, BugSyntax, BugLogic, BugTypeError, BugImport, BugIndentation}

// Valid reports whether b is one of BugTypes.
func (b BugType) Valid() bool {
	for _, t := range BugTypes {
		if t == b {
			return true
		}
	}
	return false
}

// FixStatus is the outcome recorded on a FixRecord.
type FixStatus string

const (
	FixFixed  FixStatus = "Fixed"
	FixFailed FixStatus = "Failed"
)

// FixRecord is one applied patch. Records are created once by the fix stage
// and never modified afterwards.
type FixRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	File      string    `json:"file"`
	Type      BugType   `json:"type"`
	Line      int       `json:"line"`
	Commit    string    `json:"commit"`
	Status    FixStatus `json:"status"`
}

// RunState is the single record threaded through a repair run.
//
// RunID, RepoURL, TeamName and LeaderName are fixed at creation. Every other
// field changes only through Merge.
type RunState struct {
	RunID      string `json:"run_id"`
	RepoURL    string `json:"repo_url"`
	TeamName   string `json:"team_name"`
	LeaderName string `json:"leader_name"`

	RepoPath      string `json:"repo_path"`
	RepoStructure string `json:"repo_structure"`
	Language      string `json:"language"`
	InstallCmd    string `json:"install_cmd"`
	TestCmd       string `json:"test_cmd"`
	TestScore     int    `json:"test_score"`
	ErrorLog      string `json:"error_log"`
	FinalStatus   Status `json:"final_status"`

	Fixes      []FixRecord `json:"fixes"`
	Iterations int         `json:"iterations"`
}

// NewRunState returns a state with identifiers set and every accumulator empty.
func NewRunState(runID, repoURL, teamName, leaderName string) RunState {
	return RunState{
		RunID:      runID,
		RepoURL:    repoURL,
		TeamName:   teamName,
		LeaderName: leaderName,
		Fixes:      []FixRecord{},
	}
}

// ScoreBreakdown is derived from a terminal RunState and never persisted on it.
type ScoreBreakdown struct {
	Base              int `json:"base"`
	SpeedBonus        int `json:"speed_bonus"`
	EfficiencyPenalty int `json:"efficiency_penalty"`
	Final             int `json:"final"`
}

// Summary carries the headline numbers shown for a finished run.
type Summary struct {
	Branch        string `json:"branch"`
	TotalFailures int    `json:"total_failures"`
	TotalFixes    int    `json:"total_fixes"`
	TimeTaken     string `json:"time_taken"`
}

// Analysis is the analyzer's verdict as reported, with "N/A" for blanks.
type Analysis struct {
	Language          string `json:"language"`
	InstallCmd        string `json:"install_cmd"`
	TestCmd           string `json:"test_cmd"`
	TestCoverageScore int    `json:"test_coverage_score"`
}

// RunReport is the only thing handed back to callers of a completed run.
type RunReport struct {
	RunID          string         `json:"run_id"`
	Status         string         `json:"status"` // PASSED, FAILED or NO_TESTS
	State          RunState       `json:"state"`
	Summary        Summary        `json:"summary"`
	Analysis       Analysis       `json:"analysis"`
	Score          ScoreBreakdown `json:"score"`
	Duration       time.Duration  `json:"duration"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Published      bool           `json:"published"`
	CommitHash     string         `json:"commit_hash,omitempty"`
	PullRequestURL string         `json:"pull_request_url,omitempty"`
}

// Checkpoint is the persisted position of an in-flight run. Next names the
// stage that has not yet run.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Next      string    `json:"next"`
	State     RunState  `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
