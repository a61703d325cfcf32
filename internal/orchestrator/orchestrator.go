// Package orchestrator drives a repair run through its stages: it owns the
// RunState, applies each stage's partial update, decides the next stage and
// turns the terminal state into a RunReport.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/repo"
	"github.com/lucasnoah/fixfactory/internal/score"
	"github.com/lucasnoah/fixfactory/internal/stage"
)

// DefaultMaxIterations is the number of failing test runs after which the
// loop gives up and publishes.
const DefaultMaxIterations = 3

// ErrInvalidRequest is returned when a Request is missing a field.
var ErrInvalidRequest = errors.New("invalid request")

// Stages runs one stage against a state. *stage.Engine implements it.
type Stages interface {
	Run(ctx context.Context, name stage.Name, st pipeline.RunState) (*stage.Outcome, error)
}

// Workspaces releases working copies.
type Workspaces interface {
	Remove(path string) error
}

// Recorder persists run events and finished reports. *db.DB implements it.
type Recorder interface {
	LogRunEvent(runID, event, stage string, iteration int, detail string) error
	SaveReport(r *pipeline.RunReport) error
}

// PullRequester opens a pull request for a pushed branch and returns its URL.
type PullRequester interface {
	OpenPullRequest(ctx context.Context, remoteURL, head, title, body string) (string, error)
}

// Deps are the collaborators an Orchestrator drives. Only Stages is required.
type Deps struct {
	Stages       Stages
	Workspaces   Workspaces
	Store        *pipeline.Store
	Recorder     Recorder
	PullRequests PullRequester
	Metrics      *Metrics
}

// Options tune an Orchestrator.
type Options struct {
	MaxIterations int
	KeepWorkspace bool // leave working copies on disk after a finished run
}

// Request names the repository to repair and who the fix is credited to.
type Request struct {
	RepoURL    string `yaml:"repo_url" json:"repo_url"`
	TeamName   string `yaml:"team" json:"team"`
	LeaderName string `yaml:"leader" json:"leader"`
}

// Validate reports the first missing field.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.RepoURL) == "":
		return fmt.Errorf("%w: repo url is required", ErrInvalidRequest)
	case strings.TrimSpace(r.TeamName) == "":
		return fmt.Errorf("%w: team name is required", ErrInvalidRequest)
	case strings.TrimSpace(r.LeaderName) == "":
		return fmt.Errorf("%w: leader name is required", ErrInvalidRequest)
	}
	return nil
}

// StageError is a fatal failure of one stage. State is the run state at the
// moment of failure, so fixes applied before a failed publish are not lost.
type StageError struct {
	RunID string
	Stage stage.Name
	State pipeline.RunState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s: %s stage: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Orchestrator composes stage execution, routing, persistence and metrics.
type Orchestrator struct {
	deps  Deps
	opts  Options
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator. A nil logger discards output.
func New(deps Deps, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{deps: deps, opts: opts, log: log, now: time.Now, newID: uuid.NewString}
}

// Next is the transition function. The only branch point is after Test:
// passing tests go to Publish, failing ones go to Fix until maxIterations
// failing runs have been seen.
func Next(cur stage.Name, st pipeline.RunState, maxIterations int) (stage.Name, error) {
	switch cur {
	case stage.Setup:
		return stage.Analyze, nil
	case stage.Analyze:
		return stage.Test, nil
	case stage.Test:
		if st.FinalStatus == pipeline.StatusPassed {
			return stage.Publish, nil
		}
		if st.Iterations >= maxIterations {
			return stage.Publish, nil
		}
		return stage.Fix, nil
	case stage.Fix:
		return stage.Test, nil
	case stage.Publish:
		return stage.Done, nil
	}
	return "", fmt.Errorf("no transition from stage %q", cur)
}

// maxSteps bounds how many stages one run may execute: setup, analyze, the
// first test, a fix and a test per allowed retry, then publish.
func maxSteps(maxIterations int) int {
	return 4 + 2*maxIterations
}

// RunRepair executes a complete run for req and returns its report. A fatal
// stage failure returns a *StageError and no report.
func (o *Orchestrator) RunRepair(ctx context.Context, req Request) (*pipeline.RunReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st := pipeline.NewRunState(o.newID(), strings.TrimSpace(req.RepoURL), strings.TrimSpace(req.TeamName), strings.TrimSpace(req.LeaderName))
	return o.drive(ctx, st, stage.Setup, o.now())
}

// Resume continues a run from its last checkpoint. A run whose working copy
// is gone restarts from Setup with the same identifiers.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*pipeline.RunReport, error) {
	if o.deps.Store == nil {
		return nil, fmt.Errorf("resume %s: no run store configured", runID)
	}
	cp, err := o.deps.Store.GetCheckpoint(runID)
	if err != nil {
		return nil, err
	}
	next := stage.Name(cp.Next)
	if !next.Valid() {
		return nil, fmt.Errorf("resume %s: checkpoint names unknown stage %q", runID, cp.Next)
	}
	if next == stage.Done {
		return o.deps.Store.GetReport(runID)
	}

	st := cp.State
	if next != stage.Setup && !dirExists(st.RepoPath) {
		o.log.Warn("working copy missing, restarting run", zap.String("run_id", runID), zap.String("dir", st.RepoPath))
		st = pipeline.NewRunState(st.RunID, st.RepoURL, st.TeamName, st.LeaderName)
		next = stage.Setup
	}
	o.record(st.RunID, "resumed", next, st.Iterations, "")
	return o.drive(ctx, st, next, cp.StartedAt)
}

func (o *Orchestrator) drive(ctx context.Context, st pipeline.RunState, cur stage.Name, started time.Time) (*pipeline.RunReport, error) {
	log := o.log.With(zap.String("run_id", st.RunID))
	log.Info("run started", zap.String("repo", repo.RedactURL(st.RepoURL)), zap.String("team", st.TeamName), zap.String("stage", string(cur)))

	var published *repo.PublishResult
	steps := 0
	limit := maxSteps(o.opts.MaxIterations)

	for cur != stage.Done {
		if steps >= limit {
			err := fmt.Errorf("step limit %d exceeded", limit)
			return nil, o.fail(st, cur, err, log)
		}
		steps++
		o.checkpoint(st, cur, started, log)

		out, err := o.deps.Stages.Run(ctx, cur, st)
		if err != nil {
			return nil, o.fail(st, cur, err, log)
		}
		st = st.Merge(out.Update)
		if out.Published != nil {
			published = out.Published
		}
		o.record(st.RunID, out.Event, cur, st.Iterations, out.Detail)

		next, err := Next(cur, st, o.opts.MaxIterations)
		if err != nil {
			return nil, o.fail(st, cur, err, log)
		}
		log.Debug("transition", zap.String("from", string(cur)), zap.String("to", string(next)), zap.Int("iterations", st.Iterations))
		cur = next
	}

	finished := o.now()
	report := BuildReport(st, started, finished, published)
	if published != nil && published.Pushed && o.deps.PullRequests != nil {
		report.PullRequestURL = o.openPullRequest(ctx, st, report, published, log)
	}

	o.checkpoint(st, stage.Done, started, log)
	o.saveReport(report, log)
	o.deps.Metrics.ObserveRun(report)
	if !o.opts.KeepWorkspace {
		o.release(st, log)
	}

	log.Info("run finished",
		zap.String("status", report.Status),
		zap.Int("score", report.Score.Final),
		zap.Int("fixes", len(st.Fixes)),
		zap.Int("iterations", st.Iterations),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// fail records a fatal stage error and releases the working copy. The
// working copy is kept for resumption only when KeepWorkspace is set and
// the run was not cancelled.
func (o *Orchestrator) fail(st pipeline.RunState, cur stage.Name, err error, log *zap.Logger) error {
	log.Error("stage failed", zap.String("stage", string(cur)), zap.Int("iteration", st.Iterations), zap.Error(err))
	o.record(st.RunID, "failed", cur, st.Iterations, err.Error())
	o.deps.Metrics.StageFailed(cur)
	if stage.IsCancelled(err) || !o.opts.KeepWorkspace {
		o.release(st, log)
	}
	return &StageError{RunID: st.RunID, Stage: cur, State: st, Err: err}
}

func (o *Orchestrator) release(st pipeline.RunState, log *zap.Logger) {
	if o.deps.Workspaces == nil || st.RepoPath == "" {
		return
	}
	if err := o.deps.Workspaces.Remove(st.RepoPath); err != nil {
		log.Warn("remove working copy", zap.String("dir", st.RepoPath), zap.Error(err))
	}
}

func (o *Orchestrator) checkpoint(st pipeline.RunState, next stage.Name, started time.Time, log *zap.Logger) {
	if o.deps.Store == nil {
		return
	}
	cp := &pipeline.Checkpoint{RunID: st.RunID, Next: string(next), State: st, StartedAt: started}
	if err := o.deps.Store.SaveCheckpoint(cp); err != nil {
		log.Warn("save checkpoint", zap.Error(err))
	}
}

func (o *Orchestrator) saveReport(r *pipeline.RunReport, log *zap.Logger) {
	if o.deps.Store != nil {
		if err := o.deps.Store.SaveReport(r); err != nil {
			log.Warn("save report file", zap.Error(err))
		}
	}
	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.SaveReport(r); err != nil {
			log.Warn("save report row", zap.Error(err))
		}
	}
}

func (o *Orchestrator) record(runID, event string, st stage.Name, iteration int, detail string) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.LogRunEvent(runID, event, string(st), iteration, detail); err != nil {
		o.log.Warn("log run event", zap.String("run_id", runID), zap.String("event", event), zap.Error(err))
	}
}

func (o *Orchestrator) openPullRequest(ctx context.Context, st pipeline.RunState, r *pipeline.RunReport, pub *repo.PublishResult, log *zap.Logger) string {
	title := fmt.Sprintf("Automated fixes by %s (%s)", st.TeamName, st.LeaderName)
	body := fmt.Sprintf("Status: %s\nFixes: %d\nScore: %d\n", r.Status, len(st.Fixes), r.Score.Final)
	url, err := o.deps.PullRequests.OpenPullRequest(ctx, st.RepoURL, pub.Branch, title, body)
	if err != nil {
		log.Warn("open pull request", zap.String("branch", pub.Branch), zap.Error(err))
		return ""
	}
	o.record(st.RunID, "pull_request", stage.Publish, st.Iterations, url)
	return url
}

// BuildReport derives the externally visible report from a terminal state.
func BuildReport(st pipeline.RunState, started, finished time.Time, pub *repo.PublishResult) *pipeline.RunReport {
	d := finished.Sub(started)
	if d < 0 {
		d = 0
	}
	failures := len(st.Fixes)
	if st.FinalStatus == pipeline.StatusFailed {
		failures++
	}
	branch := repo.BranchName(st.TeamName, st.LeaderName)
	r := &pipeline.RunReport{
		RunID:  st.RunID,
		Status: score.Status(st),
		State:  st,
		Summary: pipeline.Summary{
			Branch:        branch,
			TotalFailures: failures,
			TotalFixes:    len(st.Fixes),
			TimeTaken:     TimeTaken(d),
		},
		Analysis: pipeline.Analysis{
			Language:          orNA(st.Language),
			InstallCmd:        orNA(st.InstallCmd),
			TestCmd:           orNA(st.TestCmd),
			TestCoverageScore: st.TestScore,
		},
		Score:      score.Calculate(st, d),
		Duration:   d,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if pub != nil {
		r.Summary.Branch = pub.Branch
		r.Published = pub.Pushed
		r.CommitHash = pub.CommitHash
	}
	return r
}

// TimeTaken renders d as whole minutes and seconds, e.g. "4m 10s".
func TimeTaken(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
