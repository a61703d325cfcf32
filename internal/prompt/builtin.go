package prompt

// Template names understood by LoadTemplate.
const (
	AnalyzeTemplate = "analyze.md"
	FixTemplate     = "fix.md"
)

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	AnalyzeTemplate: analyzeTemplate,
	FixTemplate:     fixTemplate,
}

const analyzeTemplate = `# Analyze repository

You are a build engineer looking at a freshly cloned repository.

## File tree
{{repo_structure}}

## Task
Determine:
1. The primary programming language (e.g. Python, Node, Go).
2. The exact shell command that installs dependencies. Use "none" if nothing needs installing.
3. The exact shell command that runs the test suite (e.g. "pytest", "npm test"). Use "echo No tests found" if the repository has no tests.
4. A test quality score from 0 to 100 based on the test files present. Use 0 when there are no tests.

{{#if language_hint}}
The caller believes the language is {{language_hint}}.
{{/if}}

Respond only by calling the {{tool_name}} tool. Do not add any other text.
`

const fixTemplate = `# Repair failing tests

The test suite of a {{language}} repository failed (attempt {{iteration}} of {{max_iterations}}).

## File tree
{{repo_structure}}

## Test output
` + "```" + `
{{error_log}}
` + "```" + `

{{#if previous_files}}
## Files already rewritten in this run
{{previous_files}}
{{/if}}

## Task
Find the single file that causes the failure and rewrite it completely.
- "file" is the path relative to the repository root, exactly as it appears in the tree.
- "newCode" is the full corrected contents of that file, not a diff.
- "bugType" is one of LINTING, SYNTAX, LOGIC, TYPE_ERROR, IMPORT, INDENTATION.
- "line" is the approximate line of the defect.
- "commitMsg" is a one-line description of the fix.

Respond only by calling the {{tool_name}} tool. Do not add any other text.
`
