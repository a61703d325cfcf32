// Package stage implements the five stages of a repair run. Each stage reads
// the current RunState and returns a partial Update; it never mutates state.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/checks"
	"github.com/lucasnoah/fixfactory/internal/credential"
	"github.com/lucasnoah/fixfactory/internal/oracle"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/repo"
	"github.com/lucasnoah/fixfactory/internal/tree"
)

// Name identifies a stage of the run.
type Name string

const (
	Setup   Name = "setup"
	Analyze Name = "analyze"
	Test    Name = "test"
	Fix     Name = "fix"
	Publish Name = "publish"
	Done    Name = "done"
)

// Names lists the runnable stages in pipeline order.
var Names = []Name{Setup, Analyze, Test, Fix, Publish}

// Valid reports whether n is a runnable stage or Done.
func (n Name) Valid() bool {
	for _, s := range Names {
		if s == n {
			return true
		}
	}
	return n == Done
}

// Event names recorded for each stage outcome.
const (
	EventSetup      = "setup"
	EventAnalyzed   = "analyzed"
	EventTestPassed = "test_passed"
	EventTestFailed = "test_failed"
	EventFixApplied = "fix_applied"
	EventFixFailed  = "fix_failed"
	EventPublished  = "published"
)

// Repository is the git side of a run.
type Repository interface {
	Clone(ctx context.Context, repoURL, dir string) error
	WriteFile(localPath, rel, content string) (string, error)
	CommitAndPush(ctx context.Context, req repo.PublishRequest) (*repo.PublishResult, error)
}

// TestRunner runs install and test commands.
type TestRunner interface {
	RunTests(ctx context.Context, dir string, cfg checks.TestConfig) (*checks.Result, error)
}

// Workspaces allocates working-copy directories.
type Workspaces interface {
	Create(team string) (string, error)
	Remove(path string) error
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Repo       Repository
	Tests      TestRunner
	Workspaces Workspaces
	Analyzer   oracle.Analyzer
	Fixer      oracle.Fixer
	Token      *credential.Token // push credential; nil for anonymous pushes
}

// Options are the limits and publishing settings of an Engine.
type Options struct {
	MaxIterations  int
	CloneTimeout   time.Duration
	InstallTimeout time.Duration
	TestTimeout    time.Duration
	PushTimeout    time.Duration
	MaxErrorLog    int
	Tree           tree.Options
	CommitPrefix   string
	AuthorName     string
	AuthorEmail    string
	Push           bool
}

// Outcome is what a stage hands back to the orchestrator.
type Outcome struct {
	Update    pipeline.Update
	Event     string
	Detail    string
	Published *repo.PublishResult // set by Publish only
}

// Engine executes individual stages.
type Engine struct {
	deps     Deps
	opts     Options
	log      *zap.Logger
	progress io.Writer // live progress output; nil = silent
	now      func() time.Time
}

// NewEngine creates a stage engine. A nil logger discards output.
func NewEngine(deps Deps, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{deps: deps, opts: opts, log: log, now: time.Now}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Run executes the named stage against st.
func (e *Engine) Run(ctx context.Context, name Name, st pipeline.RunState) (*Outcome, error) {
	log := e.log.With(zap.String("run_id", st.RunID), zap.String("stage", string(name)), zap.Int("iteration", st.Iterations))
	switch name {
	case Setup:
		return e.setup(ctx, st, log)
	case Analyze:
		return e.analyze(ctx, st, log)
	case Test:
		return e.test(ctx, st, log)
	case Fix:
		return e.fix(ctx, st, log)
	case Publish:
		return e.publish(ctx, st, log)
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}

func (e *Engine) setup(ctx context.Context, st pipeline.RunState, log *zap.Logger) (*Outcome, error) {
	dir, err := e.deps.Workspaces.Create(st.TeamName)
	if err != nil {
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}
	e.logf("cloning %s", repo.RedactURL(st.RepoURL))

	cloneCtx, cancel := withTimeout(ctx, e.opts.CloneTimeout)
	defer cancel()
	if err := e.deps.Repo.Clone(cloneCtx, st.RepoURL, dir); err != nil {
		if rmErr := e.deps.Workspaces.Remove(dir); rmErr != nil {
			log.Warn("remove partial clone", zap.Error(rmErr))
		}
		return nil, err
	}

	log.Info("repository cloned", zap.String("dir", dir))
	return &Outcome{
		Update: pipeline.Update{RepoPath: pipeline.Set(dir)},
		Event:  EventSetup,
		Detail: dir,
	}, nil
}

func (e *Engine) analyze(ctx context.Context, st pipeline.RunState, log *zap.Logger) (*Outcome, error) {
	snapshot, err := tree.Render(st.RepoPath, e.opts.Tree)
	if err != nil {
		return nil, err
	}
	e.logf("analyzing repository structure")

	a, err := e.deps.Analyzer.Analyze(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	e.logf("language %s, install %q, test %q", a.Language, a.InstallCmd, a.TestCmd)
	log.Info("analysis recorded", zap.String("language", a.Language), zap.String("test_cmd", a.TestCmd), zap.Int("test_score", a.TestScore))

	return &Outcome{
		Update: pipeline.Update{
			RepoStructure: pipeline.Set(snapshot),
			Language:      pipeline.Set(a.Language),
			InstallCmd:    pipeline.Set(a.InstallCmd),
			TestCmd:       pipeline.Set(a.TestCmd),
			TestScore:     pipeline.Set(a.TestScore),
		},
		Event:  EventAnalyzed,
		Detail: fmt.Sprintf("%s: %s", a.Language, a.TestCmd),
	}, nil
}

func (e *Engine) test(ctx context.Context, st pipeline.RunState, log *zap.Logger) (*Outcome, error) {
	e.logf("running %q", st.TestCmd)
	res, err := e.deps.Tests.RunTests(ctx, st.RepoPath, checks.TestConfig{
		InstallCmd:     st.InstallCmd,
		TestCmd:        st.TestCmd,
		InstallTimeout: e.opts.InstallTimeout,
		TestTimeout:    e.opts.TestTimeout,
		MaxOutput:      e.opts.MaxErrorLog,
	})
	if err != nil {
		return nil, err
	}

	if res.Passed {
		e.logf("tests passed")
		log.Info("tests passed", zap.Int("duration_ms", res.DurationMs))
		return &Outcome{
			Update: pipeline.Update{
				FinalStatus: pipeline.Set(pipeline.StatusPassed),
				ErrorLog:    pipeline.Set(""),
			},
			Event:  EventTestPassed,
			Detail: res.Summary,
		}, nil
	}

	e.logf("tests failed: %s", res.Summary)
	log.Info("tests failed", zap.String("step", string(res.Step)), zap.Int("exit_code", res.ExitCode), zap.Bool("timed_out", res.TimedOut))
	return &Outcome{
		Update: pipeline.Update{
			FinalStatus: pipeline.Set(pipeline.StatusFailed),
			ErrorLog:    pipeline.Set(res.Output),
			Iterations:  1,
		},
		Event:  EventTestFailed,
		Detail: res.Summary,
	}, nil
}

// fix asks the oracle for a patch and writes it. An oracle or write failure
// is recorded as a Failed fix rather than aborting the run: the next test
// decides. Only cancellation is returned as an error.
func (e *Engine) fix(ctx context.Context, st pipeline.RunState, log *zap.Logger) (*Outcome, error) {
	rec := pipeline.FixRecord{
		ID:        int64(len(st.Fixes) + 1),
		CreatedAt: e.now().UTC(),
		Status:    pipeline.FixFailed,
	}
	failed := func(err error) (*Outcome, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logf("fix failed: %v", err)
		log.Warn("fix not applied", zap.Error(err))
		return &Outcome{
			Update: pipeline.Update{Fixes: []pipeline.FixRecord{rec}},
			Event:  EventFixFailed,
			Detail: err.Error(),
		}, nil
	}

	var previous []string
	for _, f := range st.Fixes {
		previous = append(previous, f.File)
	}

	e.logf("requesting fix (iteration %d)", st.Iterations)
	p, err := e.deps.Fixer.ProposeFix(ctx, oracle.FixRequest{
		Tree:          st.RepoStructure,
		ErrorLog:      st.ErrorLog,
		Language:      st.Language,
		Iteration:     st.Iterations,
		MaxIterations: e.opts.MaxIterations,
		PreviousFiles: previous,
	})
	if err != nil {
		return failed(err)
	}
	rec.File = p.File
	rec.Type = p.BugType
	rec.Line = p.Line

	written, err := e.deps.Repo.WriteFile(st.RepoPath, p.File, p.NewCode)
	if err != nil {
		return failed(err)
	}

	rec.File = written
	rec.Commit = p.CommitMsg
	rec.Status = pipeline.FixFixed
	e.logf("overwrote %s (%s, line %d)", written, p.BugType, p.Line)
	log.Info("fix applied", zap.String("file", written), zap.String("bug_type", string(p.BugType)), zap.Int("line", p.Line))
	return &Outcome{
		Update: pipeline.Update{Fixes: []pipeline.FixRecord{rec}},
		Event:  EventFixApplied,
		Detail: fmt.Sprintf("%s: %s", written, p.CommitMsg),
	}, nil
}

func (e *Engine) publish(ctx context.Context, st pipeline.RunState, log *zap.Logger) (*Outcome, error) {
	branch := repo.BranchName(st.TeamName, st.LeaderName)
	e.logf("committing to %s", branch)

	pushCtx, cancel := withTimeout(ctx, e.opts.PushTimeout)
	defer cancel()
	res, err := e.deps.Repo.CommitAndPush(pushCtx, repo.PublishRequest{
		Dir:         st.RepoPath,
		Branch:      branch,
		Message:     CommitMessage(e.opts.CommitPrefix, st.Fixes),
		AuthorName:  e.opts.AuthorName,
		AuthorEmail: e.opts.AuthorEmail,
		Push:        e.opts.Push,
		Token:       e.deps.Token,
	})
	if err != nil {
		return nil, err
	}

	log.Info("published", zap.String("branch", res.Branch), zap.String("commit", res.CommitHash), zap.Bool("pushed", res.Pushed))
	detail := res.Branch
	if !res.Pushed {
		detail += " (local only)"
	}
	return &Outcome{Event: EventPublished, Detail: detail, Published: res}, nil
}

// CommitMessage is the tagged subject line followed by one line per applied fix.
func CommitMessage(prefix string, fixes []pipeline.FixRecord) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prefix + " Applied automated fixes"))
	first := true
	for _, f := range fixes {
		if f.Status != pipeline.FixFixed {
			continue
		}
		if first {
			b.WriteString("\n\n")
			first = false
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", f.File, f.Type, f.Commit)
	}
	return b.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
