// Package context assembles the prompt text sent to the analyzer and fixer.
package context

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasnoah/fixfactory/internal/prompt"
)

// Tool names the oracle must call. They also appear in the prompts.
const (
	AnalyzeTool = "analyze_repo"
	FixTool     = "generate_fix"
)

// maxTreeLen bounds how much of the file tree is placed in a prompt. The
// tree renderer already caps entries; this guards hand-built states.
const maxTreeLen = 60000

// Builder renders prompts from templates.
type Builder struct {
	templatesDir string
}

// NewBuilder creates a Builder. Templates in templatesDir override the
// built-in ones; an empty dir uses only built-ins.
func NewBuilder(templatesDir string) *Builder {
	return &Builder{templatesDir: templatesDir}
}

// AnalyzeOpts is the input to the analyzer prompt.
type AnalyzeOpts struct {
	Tree         string
	LanguageHint string
}

// FixOpts is the input to the fixer prompt.
type FixOpts struct {
	Tree          string
	ErrorLog      string
	Language      string
	Iteration     int
	MaxIterations int
	PreviousFiles []string
}

// AnalyzePrompt renders the analyzer prompt.
func (b *Builder) AnalyzePrompt(opts AnalyzeOpts) (string, error) {
	if strings.TrimSpace(opts.Tree) == "" {
		return "", fmt.Errorf("build analyze prompt: empty file tree")
	}
	vars := prompt.Vars{
		"repo_structure": clip(opts.Tree),
		"language_hint":  opts.LanguageHint,
		"tool_name":      AnalyzeTool,
	}
	return b.render(prompt.AnalyzeTemplate, vars)
}

// FixPrompt renders the fixer prompt.
func (b *Builder) FixPrompt(opts FixOpts) (string, error) {
	language := opts.Language
	if language == "" {
		language = "software"
	}
	errorLog := opts.ErrorLog
	if strings.TrimSpace(errorLog) == "" {
		errorLog = "(the test command failed without output)"
	}

	vars := prompt.Vars{
		"language":       language,
		"iteration":      strconv.Itoa(opts.Iteration),
		"max_iterations": strconv.Itoa(opts.MaxIterations),
		"repo_structure": clip(opts.Tree),
		"error_log":      errorLog,
		"previous_files": bulletList(opts.PreviousFiles),
		"tool_name":      FixTool,
	}
	return b.render(prompt.FixTemplate, vars)
}

func (b *Builder) render(name string, vars prompt.Vars) (string, error) {
	tmpl, err := prompt.LoadTemplate(name, b.templatesDir)
	if err != nil {
		return "", err
	}
	out, err := prompt.Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// bulletList renders unique entries as a markdown list, in first-seen order.
func bulletList(items []string) string {
	seen := make(map[string]bool, len(items))
	var b strings.Builder
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func clip(tree string) string {
	if len(tree) <= maxTreeLen {
		return tree
	}
	return tree[:maxTreeLen] + "\n... (tree truncated)"
}
