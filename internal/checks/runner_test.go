package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
}

type mockCall struct {
	Dir      string
	Command  string
	Deadline time.Time
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Block    bool // wait for ctx to end
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	deadline, _ := ctx.Deadline()
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command, Deadline: deadline})
	if m.callIdx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	if r.Block {
		<-ctx.Done()
		return r.Stdout, r.Stderr, -1, ctx.Err()
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func TestRunTests_HappyPath(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "installed", ExitCode: 0},
			{Stdout: "3 passed", ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{
		InstallCmd: "pip install -r requirements.txt",
		TestCmd:    "pytest",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected passed=true, got false")
	}
	if result.Step != StepTest {
		t.Errorf("expected step=test, got %q", result.Step)
	}
	if result.Output != "3 passed" {
		t.Errorf("expected output of the test step, got %q", result.Output)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.calls))
	}
	if mock.calls[0].Command != "pip install -r requirements.txt" || mock.calls[1].Command != "pytest" {
		t.Errorf("unexpected commands: %+v", mock.calls)
	}
	if mock.calls[1].Dir != "/tmp/repo" {
		t.Errorf("expected dir=/tmp/repo, got %q", mock.calls[1].Dir)
	}
}

func TestRunTests_FailedSuite(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "FAILED test_add", Stderr: "AssertionError: 3 != 4", ExitCode: 1},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{InstallCmd: "none", TestCmd: "pytest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit_code=1, got %d", result.ExitCode)
	}
	if result.Output != "FAILED test_add\nAssertionError: 3 != 4" {
		t.Errorf("expected stdout+stderr, got %q", result.Output)
	}
	if len(mock.calls) != 1 {
		t.Errorf("install should be skipped, got %d calls", len(mock.calls))
	}
}

func TestRunTests_InstallFailureStops(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stderr: "npm ERR! missing script", ExitCode: 2},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{InstallCmd: "npm install", TestCmd: "npm test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed || result.Step != StepInstall {
		t.Errorf("expected failed install result, got %+v", result)
	}
	if len(mock.calls) != 1 {
		t.Errorf("test step should not run after install failure, got %d calls", len(mock.calls))
	}
}

func TestRunTests_StepTimeoutIsFailure(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "collecting...", Block: true},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{TestCmd: "pytest", TestTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed || !result.TimedOut {
		t.Errorf("expected timed out failure, got %+v", result)
	}
	if !strings.Contains(result.Output, "collecting...") || !strings.Contains(result.Output, "timeout after") {
		t.Errorf("expected partial output plus timeout note, got %q", result.Output)
	}
}

func TestRunTests_ParentCancelIsError(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Block: true}}}
	runner := NewRunner(mock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := runner.RunTests(ctx, "/tmp/repo", TestConfig{TestCmd: "pytest", TestTimeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunTests_ExecErrorIsFailure(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Err: errors.New("sh: not found")}}}
	runner := NewRunner(mock)

	result, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{TestCmd: "pytest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed || result.TimedOut {
		t.Errorf("expected plain failure, got %+v", result)
	}
	if !strings.Contains(result.Output, "sh: not found") {
		t.Errorf("expected exec error in output, got %q", result.Output)
	}
}

func TestRunTests_EmptyTestCommand(t *testing.T) {
	runner := NewRunner(&mockCmd{})
	if _, err := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{TestCmd: "  "}); err == nil {
		t.Error("expected error for empty test command")
	}
}

func TestRunTests_DefaultTimeout(t *testing.T) {
	mock := &mockCmd{}
	runner := NewRunner(mock)

	start := time.Now()
	runner.RunTests(context.Background(), "/tmp/repo", TestConfig{TestCmd: "pytest"})

	remaining := mock.calls[0].Deadline.Sub(start)
	if remaining < DefaultTestTimeout-time.Minute || remaining > DefaultTestTimeout+time.Minute {
		t.Errorf("expected deadline about %s out, got %s", DefaultTestTimeout, remaining)
	}
}

func TestRunTests_TruncatesOutput(t *testing.T) {
	long := strings.Repeat("a", 100) + "TAIL"
	mock := &mockCmd{results: []mockResult{{Stdout: long, ExitCode: 1}}}
	runner := NewRunner(mock)

	result, _ := runner.RunTests(context.Background(), "/tmp/repo", TestConfig{TestCmd: "pytest", MaxOutput: 10})
	if result.Output != truncatedMarker+"aaaaaaTAIL" {
		t.Errorf("unexpected output %q", result.Output)
	}
}

func TestSkipInstall(t *testing.T) {
	for _, cmd := range []string{"", "none", "None", " N/A "} {
		if !SkipInstall(cmd) {
			t.Errorf("SkipInstall(%q) = false, want true", cmd)
		}
	}
	if SkipInstall("npm install") {
		t.Error("SkipInstall(npm install) = true, want false")
	}
}

func TestExecRunner(t *testing.T) {
	runner := NewRunner(NewExecRunner())
	dir := t.TempDir()

	result, err := runner.RunTests(context.Background(), dir, TestConfig{InstallCmd: "none", TestCmd: `echo "ci=$CI"; echo oops >&2; exit 3`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed || result.ExitCode != 3 {
		t.Errorf("expected exit 3 failure, got %+v", result)
	}
	if result.Output != "ci=true\n\noops\n" {
		t.Errorf("unexpected output %q", result.Output)
	}

	result, err = runner.RunTests(context.Background(), dir, TestConfig{TestCmd: "true"})
	if err != nil || !result.Passed {
		t.Errorf("expected pass, got %+v, %v", result, err)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	runner := NewRunner(NewExecRunner())

	start := time.Now()
	result, err := runner.RunTests(context.Background(), t.TempDir(), TestConfig{TestCmd: "sleep 30", TestTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Errorf("expected timeout, got %+v", result)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("timeout did not kill the command promptly")
	}
}
