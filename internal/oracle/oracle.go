// Package oracle is the boundary to the language model that analyzes
// repositories and proposes fixes. Every response is validated before it
// leaves this package.
package oracle

import (
	"context"
	"errors"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// ErrInvalidResponse is returned when the model's answer does not match the
// expected schema.
var ErrInvalidResponse = errors.New("invalid oracle response")

// Analysis is the analyzer's verdict on how to build and test a repository.
type Analysis struct {
	Language   string `json:"language"`
	InstallCmd string `json:"install_cmd"`
	TestCmd    string `json:"test_cmd"`
	TestScore  int    `json:"test_score"` // 0-100
}

// FixRequest is what the fixer sees: the tree snapshot from analysis and the
// latest test output.
type FixRequest struct {
	Tree          string
	ErrorLog      string
	Language      string
	Iteration     int
	MaxIterations int
	PreviousFiles []string
}

// FixProposal is one full-file replacement.
type FixProposal struct {
	File      string           `json:"file"`
	NewCode   string           `json:"new_code"`
	BugType   pipeline.BugType `json:"bug_type"`
	Line      int              `json:"line"`
	CommitMsg string           `json:"commit_msg"`
}

// Analyzer proposes install and test commands for a file tree.
type Analyzer interface {
	Analyze(ctx context.Context, tree string) (*Analysis, error)
}

// Fixer proposes a single-file fix for a failing test run.
type Fixer interface {
	ProposeFix(ctx context.Context, req FixRequest) (*FixProposal, error)
}
