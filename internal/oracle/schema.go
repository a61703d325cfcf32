package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	appctx "github.com/lucasnoah/fixfactory/internal/context"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

var validate = validator.New()

// analysisPayload is the wire shape of the analyze_repo tool call.
type analysisPayload struct {
	Language   string   `json:"language" validate:"required"`
	InstallCmd string   `json:"installCmd" validate:"required"`
	TestCmd    string   `json:"testCmd" validate:"required"`
	TestScore  *float64 `json:"testScore" validate:"required,gte=0,lte=100"`
}

// fixPayload is the wire shape of the generate_fix tool call.
type fixPayload struct {
	File      string   `json:"file" validate:"required"`
	NewCode   *string  `json:"newCode" validate:"required"`
	BugType   string   `json:"bugType" validate:"required,oneof=LINTING SYNTAX LOGIC TYPE_ERROR IMPORT INDENTATION"`
	Line      *float64 `json:"line" validate:"required,gte=0"`
	CommitMsg string   `json:"commitMsg" validate:"required"`
}

func bugTypeNames() []string {
	names := make([]string, len(pipeline.BugTypes))
	for i, bt := range pipeline.BugTypes {
		names[i] = string(bt)
	}
	return names
}

var analyzeTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        appctx.AnalyzeTool,
		Description: "Report the language, install command, test command and test quality score of the repository.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"language":   {Type: jsonschema.String, Description: "Primary programming language (e.g. Python, Node, Go)"},
				"installCmd": {Type: jsonschema.String, Description: "Command to install dependencies. Use 'none' if none needed."},
				"testCmd":    {Type: jsonschema.String, Description: "Command to run tests. Use 'echo No tests found' if none exist."},
				"testScore":  {Type: jsonschema.Number, Description: "Score 0-100 evaluating test coverage based on file presence."},
			},
			Required: []string{"language", "installCmd", "testCmd", "testScore"},
		},
	},
}

var fixTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        appctx.FixTool,
		Description: "Replace the full contents of the one file that causes the test failure.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"file":      {Type: jsonschema.String, Description: "The exact relative file path from the repository root"},
				"newCode":   {Type: jsonschema.String, Description: "The complete corrected file contents"},
				"bugType":   {Type: jsonschema.String, Enum: bugTypeNames()},
				"line":      {Type: jsonschema.Integer, Description: "Approximate line of the defect"},
				"commitMsg": {Type: jsonschema.String},
			},
			Required: []string{"file", "newCode", "bugType", "line", "commitMsg"},
		},
	},
}

// decodeAnalysis parses and validates analyzer arguments.
func decodeAnalysis(args string) (*Analysis, error) {
	var p analysisPayload
	if err := decodePayload(args, &p); err != nil {
		return nil, err
	}
	return &Analysis{
		Language:   strings.TrimSpace(p.Language),
		InstallCmd: strings.TrimSpace(p.InstallCmd),
		TestCmd:    strings.TrimSpace(p.TestCmd),
		TestScore:  int(math.Round(*p.TestScore)),
	}, nil
}

// decodeFix parses and validates fixer arguments.
func decodeFix(args string) (*FixProposal, error) {
	var p fixPayload
	if err := decodePayload(args, &p); err != nil {
		return nil, err
	}
	return &FixProposal{
		File:      strings.TrimSpace(p.File),
		NewCode:   *p.NewCode,
		BugType:   pipeline.BugType(p.BugType),
		Line:      int(math.Round(*p.Line)),
		CommitMsg: strings.TrimSpace(p.CommitMsg),
	}, nil
}

func decodePayload(args string, v any) error {
	body := extractJSON(args)
	if body == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// extractJSON finds the JSON object in s, tolerating markdown fences and
// leading prose. It returns "" when there is none.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
