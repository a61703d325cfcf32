// Package checks runs a repository's install and test commands and reports
// whether the suite passed.
package checks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Step names which command produced a Result.
type Step string

const (
	StepInstall Step = "install"
	StepTest    Step = "test"
)

// Result holds the outcome of one install+test cycle. A failing suite is a
// Result with Passed=false, never an error.
type Result struct {
	Passed     bool   `json:"passed"`
	Step       Step   `json:"step"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary"`
	Output     string `json:"output"`
}

// TestConfig carries the commands chosen by the analyzer and the limits they
// run under.
type TestConfig struct {
	InstallCmd     string
	TestCmd        string
	InstallTimeout time.Duration
	TestTimeout    time.Duration
	MaxOutput      int // bytes of combined output kept, tail first
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out. Env is appended to
// the parent environment.
type ExecRunner struct {
	Env       []string
	WaitDelay time.Duration
}

// NewExecRunner returns an ExecRunner that marks commands as running in CI so
// test suites do not wait for input.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Env: []string{"CI=true"}, WaitDelay: 5 * time.Second}
}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.WaitDelay = e.WaitDelay
	setProcessGroup(cmd)

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Default per-step timeouts, used when TestConfig leaves them unset.
const (
	DefaultInstallTimeout = 10 * time.Minute
	DefaultTestTimeout    = 10 * time.Minute
)

// Runner executes install and test commands.
type Runner struct {
	cmd CommandRunner
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd}
}

// SkipInstall reports whether an analyzer-chosen install command means
// "nothing to install".
func SkipInstall(cmd string) bool {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "", "none", "n/a":
		return true
	}
	return false
}

// RunTests runs the install command (unless skipped) and then the test
// command in dir. A non-zero exit or a step timeout from either yields a
// failed Result. Only cancellation of ctx itself is returned as an error.
func (r *Runner) RunTests(ctx context.Context, dir string, cfg TestConfig) (*Result, error) {
	if !SkipInstall(cfg.InstallCmd) {
		res, err := r.runStep(ctx, dir, StepInstall, cfg.InstallCmd, orDefault(cfg.InstallTimeout, DefaultInstallTimeout), cfg.MaxOutput)
		if err != nil {
			return nil, err
		}
		if !res.Passed {
			return res, nil
		}
	}
	if strings.TrimSpace(cfg.TestCmd) == "" {
		return nil, fmt.Errorf("run tests: empty test command")
	}
	return r.runStep(ctx, dir, StepTest, cfg.TestCmd, orDefault(cfg.TestTimeout, DefaultTestTimeout), cfg.MaxOutput)
}

// runStep executes a single command under its own timeout.
func (r *Runner) runStep(ctx context.Context, dir string, step Step, command string, timeout time.Duration, maxOutput int) (*Result, error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(stepCtx, dir, command)
	durationMs := int(time.Since(start).Milliseconds())
	output := Tail(Combine(stdout, stderr), maxOutput)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", step, ctx.Err())
		}
		res := &Result{
			Passed:     false,
			Step:       step,
			ExitCode:   -1,
			DurationMs: durationMs,
		}
		// Context deadline exceeded → timeout
		if stepCtx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.Summary = fmt.Sprintf("%s timeout after %s", step, timeout)
		} else {
			res.Summary = fmt.Sprintf("%s could not run: %v", step, err)
		}
		res.Output = joinNonEmpty(output, res.Summary)
		return res, nil
	}

	res := &Result{
		Passed:     exitCode == 0,
		Step:       step,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Output:     output,
	}
	if res.Passed {
		res.Summary = fmt.Sprintf("%s passed (exit code 0)", step)
	} else {
		res.Summary = fmt.Sprintf("%s failed: exit code %d, stdout=%d bytes, stderr=%d bytes", step, exitCode, len(stdout), len(stderr))
	}
	return res, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
