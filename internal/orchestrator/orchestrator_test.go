package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/repo"
	"github.com/lucasnoah/fixfactory/internal/stage"
)

// --- fakes ---

// fakeStages mimics the real stage engine. Tests pass once the run has seen
// passAfter failing runs; a negative passAfter never passes.
type fakeStages struct {
	mu        sync.Mutex
	root      string
	passAfter int
	testCmd   string
	testScore int
	failAt    stage.Name
	failErr   error
	pushed    bool
	calls     []stage.Name
	seen      []pipeline.RunState
}

func (f *fakeStages) Run(ctx context.Context, name stage.Name, st pipeline.RunState) (*stage.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.seen = append(f.seen, st)
	failAt, failErr := f.failAt, f.failErr
	f.mu.Unlock()

	if name == failAt {
		return nil, failErr
	}
	switch name {
	case stage.Setup:
		dir := filepath.Join(f.root, st.RunID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return &stage.Outcome{Update: pipeline.Update{RepoPath: pipeline.Set(dir)}, Event: stage.EventSetup}, nil
	case stage.Analyze:
		return &stage.Outcome{Update: pipeline.Update{
			RepoStructure: pipeline.Set("main.py\n"),
			Language:      pipeline.Set("Python"),
			InstallCmd:    pipeline.Set("none"),
			TestCmd:       pipeline.Set(f.testCmd),
			TestScore:     pipeline.Set(f.testScore),
		}, Event: stage.EventAnalyzed}, nil
	case stage.Test:
		if f.passAfter >= 0 && st.Iterations >= f.passAfter {
			return &stage.Outcome{Update: pipeline.Update{
				FinalStatus: pipeline.Set(pipeline.StatusPassed),
				ErrorLog:    pipeline.Set(""),
			}, Event: stage.EventTestPassed}, nil
		}
		return &stage.Outcome{Update: pipeline.Update{
			FinalStatus: pipeline.Set(pipeline.StatusFailed),
			ErrorLog:    pipeline.Set(fmt.Sprintf("failure %d", st.Iterations+1)),
			Iterations:  1,
		}, Event: stage.EventTestFailed}, nil
	case stage.Fix:
		rec := pipeline.FixRecord{
			ID:     int64(len(st.Fixes) + 1),
			File:   "main.py",
			Type:   pipeline.BugLogic,
			Line:   3,
			Commit: "fix",
			Status: pipeline.FixFixed,
		}
		return &stage.Outcome{Update: pipeline.Update{Fixes: []pipeline.FixRecord{rec}}, Event: stage.EventFixApplied}, nil
	case stage.Publish:
		branch := repo.BranchName(st.TeamName, st.LeaderName)
		return &stage.Outcome{
			Event:     stage.EventPublished,
			Published: &repo.PublishResult{Branch: branch, CommitHash: "c0ffee", Pushed: f.pushed},
		}, nil
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}

func (f *fakeStages) history() []stage.Name {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stage.Name(nil), f.calls...)
}

type fakeWorkspaces struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeWorkspaces) Remove(path string) error {
	f.mu.Lock()
	f.removed = append(f.removed, path)
	f.mu.Unlock()
	return os.RemoveAll(path)
}

type event struct {
	RunID, Event, Stage string
	Iteration           int
	Detail              string
}

type fakeRecorder struct {
	mu      sync.Mutex
	events  []event
	reports []*pipeline.RunReport
}

func (f *fakeRecorder) LogRunEvent(runID, ev, st string, iteration int, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{runID, ev, st, iteration, detail})
	return nil
}

func (f *fakeRecorder) SaveReport(r *pipeline.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeRecorder) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

type fakePRs struct {
	calls []string
	err   error
}

func (f *fakePRs) OpenPullRequest(ctx context.Context, remoteURL, head, title, body string) (string, error) {
	f.calls = append(f.calls, head)
	if f.err != nil {
		return "", f.err
	}
	return "https://github.com/acme/calc/pull/7", nil
}

type harness struct {
	stages   *fakeStages
	ws       *fakeWorkspaces
	recorder *fakeRecorder
	store    *pipeline.Store
	registry *prometheus.Registry
	metrics  *Metrics
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	_, logs := observer.New(zapcore.InfoLevel)
	return &harness{
		stages:   &fakeStages{root: t.TempDir(), passAfter: 0, testCmd: "pytest", testScore: 70, pushed: true},
		ws:       &fakeWorkspaces{},
		recorder: &fakeRecorder{},
		store:    pipeline.NewStore(t.TempDir()),
		registry: reg,
		metrics:  NewMetrics(reg),
		logs:     logs,
	}
}

// build wires an Orchestrator whose clock advances by step on every reading.
func (h *harness) build(opts Options, step time.Duration, prs PullRequester) *Orchestrator {
	core, logs := observer.New(zapcore.InfoLevel)
	h.logs = logs
	o := New(Deps{
		Stages:       h.stages,
		Workspaces:   h.ws,
		Store:        h.store,
		Recorder:     h.recorder,
		PullRequests: prs,
		Metrics:      h.metrics,
	}, opts, zap.New(core))

	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := clock
		clock = clock.Add(step)
		return t
	}
	n := 0
	o.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return o
}

func request() Request {
	return Request{RepoURL: "https://github.com/acme/calc.git", TeamName: "Code Warriors", LeaderName: "Jane Doe"}
}

// --- transition function ---

func TestNext(t *testing.T) {
	failed := func(iter int) pipeline.RunState {
		return pipeline.RunState{FinalStatus: pipeline.StatusFailed, Iterations: iter}
	}
	passed := pipeline.RunState{FinalStatus: pipeline.StatusPassed, Iterations: 2}

	tests := []struct {
		name string
		cur  stage.Name
		st   pipeline.RunState
		want stage.Name
	}{
		{"setup to analyze", stage.Setup, pipeline.RunState{}, stage.Analyze},
		{"analyze to test", stage.Analyze, pipeline.RunState{}, stage.Test},
		{"pass goes to publish", stage.Test, passed, stage.Publish},
		{"first failure goes to fix", stage.Test, failed(1), stage.Fix},
		{"second failure goes to fix", stage.Test, failed(2), stage.Fix},
		{"third failure goes to publish", stage.Test, failed(3), stage.Publish},
		{"fix back to test", stage.Fix, failed(1), stage.Test},
		{"publish to done", stage.Publish, passed, stage.Done},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.cur, tt.st, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Next(stage.Done, passed, 3)
	assert.Error(t, err)
}

// --- scenarios ---

func TestRunRepair_PassFirstTime(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Minute, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []stage.Name{stage.Setup, stage.Analyze, stage.Test, stage.Publish}, h.stages.history())
	assert.Equal(t, 0, report.State.Iterations)
	assert.Empty(t, report.State.Fixes)
	assert.Equal(t, pipeline.StatusPassed, report.State.FinalStatus)
	assert.Equal(t, "PASSED", report.Status)
	assert.Equal(t, 0, report.Summary.TotalFailures)
	assert.Equal(t, "CODE_WARRIORS_JANE_DOE_AI_Fix", report.Summary.Branch)
	assert.Equal(t, "c0ffee", report.CommitHash)
	assert.True(t, report.Published)
}

func TestRunRepair_FixThenPass(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = 1
	o := h.build(Options{}, time.Minute, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []stage.Name{stage.Setup, stage.Analyze, stage.Test, stage.Fix, stage.Test, stage.Publish}, h.stages.history())
	assert.Equal(t, 1, report.State.Iterations)
	assert.Len(t, report.State.Fixes, 1)
	assert.Equal(t, pipeline.StatusPassed, report.State.FinalStatus)
	assert.Equal(t, "", report.State.ErrorLog)
	assert.Equal(t, 1, report.Summary.TotalFailures)
	assert.Equal(t, 1, report.Summary.TotalFixes)
}

func TestRunRepair_BudgetExhausted(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = -1
	o := h.build(Options{}, time.Minute, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []stage.Name{
		stage.Setup, stage.Analyze,
		stage.Test, stage.Fix, stage.Test, stage.Fix, stage.Test,
		stage.Publish,
	}, h.stages.history())
	assert.Equal(t, 3, report.State.Iterations)
	assert.Len(t, report.State.Fixes, 2)
	assert.Equal(t, pipeline.StatusFailed, report.State.FinalStatus)
	assert.Equal(t, "failure 3", report.State.ErrorLog)
	assert.Equal(t, "FAILED", report.Status)
	assert.Equal(t, 3, report.Summary.TotalFailures)
}

func TestRunRepair_NoTests(t *testing.T) {
	h := newHarness(t)
	h.stages.testCmd = "echo No tests found"
	h.stages.testScore = 0
	o := h.build(Options{}, time.Minute, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPassed, report.State.FinalStatus)
	assert.Equal(t, "NO_TESTS", report.Status)
	assert.Equal(t, 20, report.Score.Base)
}

func TestRunRepair_FastCleanScore(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, 250*time.Second, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 250*time.Second, report.Duration)
	assert.Equal(t, "4m 10s", report.Summary.TimeTaken)
	assert.Equal(t, pipeline.ScoreBreakdown{Base: 100, SpeedBonus: 10, EfficiencyPenalty: 0, Final: 110}, report.Score)
}

func TestRunRepair_TerminatesForAnyBudget(t *testing.T) {
	for max := 1; max <= 5; max++ {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			h := newHarness(t)
			h.stages.passAfter = -1
			o := h.build(Options{MaxIterations: max}, time.Second, nil)

			report, err := o.RunRepair(context.Background(), request())
			require.NoError(t, err)
			assert.Equal(t, max, report.State.Iterations)
			assert.Len(t, report.State.Fixes, max-1)

			fixes := 0
			for _, s := range h.stages.history() {
				if s == stage.Fix {
					fixes++
				}
			}
			assert.LessOrEqual(t, fixes, max)
		})
	}
}

func TestRunRepair_StateIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = -1
	o := h.build(Options{}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	prevFixes, prevIter := 0, 0
	var repoPath, tree string
	for _, st := range h.stages.seen {
		assert.GreaterOrEqual(t, len(st.Fixes), prevFixes)
		assert.GreaterOrEqual(t, st.Iterations, prevIter)
		prevFixes, prevIter = len(st.Fixes), st.Iterations
		if repoPath != "" {
			assert.Equal(t, repoPath, st.RepoPath, "repo path is never reassigned")
		}
		if tree != "" {
			assert.Equal(t, tree, st.RepoStructure, "tree snapshot is never refreshed")
		}
		repoPath, tree = st.RepoPath, st.RepoStructure
	}
}

func TestRunRepair_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Second, nil)

	for _, req := range []Request{
		{TeamName: "t", LeaderName: "l"},
		{RepoURL: "u", LeaderName: "l"},
		{RepoURL: "u", TeamName: "  ", LeaderName: "l"},
		{RepoURL: "u", TeamName: "t"},
	} {
		_, err := o.RunRepair(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, h.stages.history())
}

// --- fatal errors ---

func TestRunRepair_CloneFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.stages.failAt = stage.Setup
	h.stages.failErr = errors.New("repository not found")
	o := h.build(Options{}, time.Second, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, report)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.Setup, se.Stage)
	assert.Contains(t, err.Error(), "repository not found")

	assert.Empty(t, h.recorder.reports)
	assert.Equal(t, []string{"failed"}, h.recorder.eventNames())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.stageErrors.WithLabelValues("setup")))
	assert.Equal(t, 1, h.logs.FilterMessage("stage failed").Len())
}

func TestRunRepair_AnalyzerFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.stages.failAt = stage.Analyze
	h.stages.failErr = errors.New("invalid oracle response")
	o := h.build(Options{}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.Analyze, se.Stage)
	assert.Len(t, h.ws.removed, 1, "working copy released after a fatal error")
}

func TestRunRepair_PublishFailureKeepsFixes(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = 2
	h.stages.failAt = stage.Publish
	h.stages.failErr = errors.New("push rejected")
	o := h.build(Options{}, time.Second, nil)

	report, err := o.RunRepair(context.Background(), request())
	assert.Nil(t, report)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.Publish, se.Stage)
	assert.Equal(t, pipeline.StatusPassed, se.State.FinalStatus)
	assert.Len(t, se.State.Fixes, 2)
}

func TestRunRepair_CancelledReleasesWorkspace(t *testing.T) {
	h := newHarness(t)
	h.stages.failAt = stage.Test
	h.stages.failErr = context.Canceled
	o := h.build(Options{KeepWorkspace: true}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, h.ws.removed, 1)
	assert.NoDirExists(t, h.ws.removed[0])
}

// --- persistence, cleanup, pull requests ---

func TestRunRepair_PersistsReportAndEvents(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = 1
	o := h.build(Options{}, time.Second, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	stored, err := h.store.GetReport(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Status, stored.Status)
	assert.Len(t, stored.State.Fixes, 1)

	cp, err := h.store.GetCheckpoint(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(stage.Done), cp.Next)

	require.Len(t, h.recorder.reports, 1)
	assert.Equal(t, []string{"setup", "analyzed", "test_failed", "fix_applied", "test_passed", "published"}, h.recorder.eventNames())
	assert.Len(t, h.ws.removed, 1)
}

func TestRunRepair_KeepWorkspace(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{KeepWorkspace: true}, time.Second, nil)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, h.ws.removed)
	assert.DirExists(t, report.State.RepoPath)
}

func TestRunRepair_OpensPullRequestAfterPush(t *testing.T) {
	h := newHarness(t)
	prs := &fakePRs{}
	o := h.build(Options{}, time.Second, prs)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []string{"CODE_WARRIORS_JANE_DOE_AI_Fix"}, prs.calls)
	assert.Equal(t, "https://github.com/acme/calc/pull/7", report.PullRequestURL)
}

func TestRunRepair_PullRequestFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	prs := &fakePRs{err: errors.New("422 validation failed")}
	o := h.build(Options{}, time.Second, prs)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, report.PullRequestURL)
}

func TestRunRepair_NoPullRequestWithoutPush(t *testing.T) {
	h := newHarness(t)
	h.stages.pushed = false
	prs := &fakePRs{}
	o := h.build(Options{}, time.Second, prs)

	report, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, prs.calls)
	assert.False(t, report.Published)
}

// --- resume ---

func TestResume_FromFailedPublish(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = 1
	h.stages.failAt = stage.Publish
	h.stages.failErr = errors.New("remote hung up")
	o := h.build(Options{KeepWorkspace: true}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	var se *StageError
	require.ErrorAs(t, err, &se)

	h.stages.mu.Lock()
	h.stages.failAt = ""
	h.stages.calls = nil
	h.stages.mu.Unlock()

	report, err := o.Resume(context.Background(), se.RunID)
	require.NoError(t, err)
	assert.Equal(t, []stage.Name{stage.Publish}, h.stages.history())
	assert.Len(t, report.State.Fixes, 1)
	assert.Equal(t, "PASSED", report.Status)
	assert.Contains(t, h.recorder.eventNames(), "resumed")
}

func TestResume_MissingWorkingCopyRestarts(t *testing.T) {
	h := newHarness(t)
	h.stages.failAt = stage.Test
	h.stages.failErr = errors.New("runner crashed")
	o := h.build(Options{}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.NoDirExists(t, se.State.RepoPath)

	h.stages.mu.Lock()
	h.stages.failAt = ""
	h.stages.calls = nil
	h.stages.mu.Unlock()

	report, err := o.Resume(context.Background(), se.RunID)
	require.NoError(t, err)
	assert.Equal(t, []stage.Name{stage.Setup, stage.Analyze, stage.Test, stage.Publish}, h.stages.history())
	assert.Equal(t, se.RunID, report.RunID)
}

func TestResume_FinishedRunReturnsReport(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Second, nil)

	first, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)
	calls := len(h.stages.history())

	again, err := o.Resume(context.Background(), first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, again.RunID)
	assert.Len(t, h.stages.history(), calls)
}

func TestResume_UnknownRun(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Second, nil)
	_, err := o.Resume(context.Background(), "nope")
	assert.Error(t, err)
}

// --- metrics ---

func TestMetricsRecordCompletedRuns(t *testing.T) {
	h := newHarness(t)
	h.stages.passAfter = 2
	o := h.build(Options{}, time.Second, nil)

	_, err := o.RunRepair(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.runs.WithLabelValues("PASSED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.fixes.WithLabelValues("LOGIC", "Fixed")))
	assert.Equal(t, 5, testutil.CollectAndCount(h.registry))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRun(&pipeline.RunReport{})
	m.StageFailed(stage.Setup)
}

// --- batch ---

func TestRunBatch(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Second, nil)

	reqs := []Request{
		request(),
		{RepoURL: "https://github.com/acme/api.git", TeamName: "Other", LeaderName: ""},
		{RepoURL: "https://github.com/acme/web.git", TeamName: "Web", LeaderName: "Ann"},
	}
	results := o.RunBatch(context.Background(), reqs, 2)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "PASSED", results[0].Report.Status)
	assert.ErrorIs(t, results[1].Err, ErrInvalidRequest)
	assert.Nil(t, results[1].Report)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "WEB_ANN_AI_Fix", results[2].Report.Summary.Branch)
	assert.NotEqual(t, results[0].Report.RunID, results[2].Report.RunID)
}

func TestRunBatch_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	o := h.build(Options{}, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.RunBatch(ctx, []Request{request(), request()}, 1)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, h.stages.history())
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`runs:
  - repo_url: https://github.com/acme/calc.git
    team: Code Warriors
    leader: Jane Doe
  - repo_url: https://github.com/acme/web.git
    team: Web
    leader: Ann
`), 0o644))

	reqs, err := LoadBatch(path)
	require.NoError(t, err)
	assert.Equal(t, []Request{request(), {RepoURL: "https://github.com/acme/web.git", TeamName: "Web", LeaderName: "Ann"}}, reqs)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("runs:\n  - repo_url: x\n    team: t\n"), 0o644))
	_, err = LoadBatch(bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("runs: []\n"), 0o644))
	_, err = LoadBatch(empty)
	assert.Error(t, err)
}

// --- report ---

func TestBuildReport(t *testing.T) {
	st := pipeline.NewRunState("r1", "https://x/y.git", "Team A", "Lee").Merge(pipeline.Update{
		FinalStatus: pipeline.Set(pipeline.StatusFailed),
		TestScore:   pipeline.Set(30),
		TestCmd:     pipeline.Set("pytest"),
		Fixes:       []pipeline.FixRecord{{ID: 1}, {ID: 2}},
		Iterations:  3,
	})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r := BuildReport(st, start, start.Add(125*time.Second), nil)
	assert.Equal(t, "FAILED", r.Status)
	assert.Equal(t, pipeline.Summary{Branch: "TEAM_A_LEE_AI_Fix", TotalFailures: 3, TotalFixes: 2, TimeTaken: "2m 5s"}, r.Summary)
	assert.Equal(t, pipeline.Analysis{Language: "N/A", InstallCmd: "N/A", TestCmd: "pytest", TestCoverageScore: 30}, r.Analysis)
	assert.False(t, r.Published)
	assert.Equal(t, pipeline.ScoreBreakdown{Base: 50, SpeedBonus: 10, Final: 60}, r.Score)
}

func TestTimeTaken(t *testing.T) {
	assert.Equal(t, "0m 0s", TimeTaken(0))
	assert.Equal(t, "0m 59s", TimeTaken(59900*time.Millisecond))
	assert.Equal(t, "61m 1s", TimeTaken(61*time.Minute+time.Second))
}
