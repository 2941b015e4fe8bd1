package domain

import (
	"encoding/json"
	"strings"
)

// Step labels derived from streamed engine output.
const (
	StepReadingCode  = "Reading code"
	StepCommitting   = "Committing"
	StepStaging      = "Staging"
	StepLinting      = "Linting"
	StepTesting      = "Testing"
	StepWritingTests = "Writing tests"
	StepImplementing = "Implementing"
)

// DefaultResponse is used when a result record carries no result text.
const DefaultResponse = "Task completed"

// streamRecord is the subset of a streamed engine line we inspect.
type streamRecord struct {
	Type        string `json:"type"`
	Result      string `json:"result"`
	Message     string `json:"message"`
	Tool        string `json:"tool"`
	Name        string `json:"name"`
	ToolName    string `json:"tool_name"`
	Command     string `json:"command"`
	FilePath    string `json:"file_path"`
	FilePathAlt string `json:"filePath"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Usage       struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// parseStreamLine parses a raw engine line. Only lines whose first
// non-whitespace character is '{' are structured records.
func parseStreamLine(line string) (*streamRecord, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var rec streamRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (r *streamRecord) toolName() string {
	for _, v := range []string{r.Tool, r.Name, r.ToolName} {
		if v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

func (r *streamRecord) filePath() string {
	for _, v := range []string{r.FilePath, r.FilePathAlt, r.Path} {
		if v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// isTestPath reports whether a file path looks like a test file.
func isTestPath(path string) bool {
	return containsAny(path, ".test.", ".spec.", "__tests__", "_test.go")
}

// DetectStep classifies a streamed engine line into a human-readable step
// label. Returns "" when the line carries no step information. The rules are
// evaluated in a fixed priority order; reads of test files must classify as
// "Reading code", never as "Writing tests".
func DetectStep(line string) string {
	rec, ok := parseStreamLine(line)
	if !ok {
		return ""
	}

	tool := rec.toolName()
	command := strings.ToLower(rec.Command)
	path := rec.filePath()
	description := strings.ToLower(rec.Description)

	switch {
	case tool == "read" || tool == "glob" || tool == "grep":
		return StepReadingCode
	case containsAny(command, "git commit") || containsAny(description, "git commit"):
		return StepCommitting
	case containsAny(command, "git add") || containsAny(description, "git add"):
		return StepStaging
	case containsAny(command, "lint", "eslint", "biome", "prettier"):
		return StepLinting
	case containsAny(command, "vitest", "jest", "bun test", "npm test", "pytest", "go test"):
		return StepTesting
	case (tool == "write" || tool == "edit") && isTestPath(path):
		return StepWritingTests
	case tool == "write" || tool == "edit":
		return StepImplementing
	}
	return ""
}

// DetectError extracts an error message from a streamed engine line.
// Returns "" when the line is not an error record.
func DetectError(line string) string {
	rec, ok := parseStreamLine(line)
	if !ok || rec.Type != "error" {
		return ""
	}
	if rec.Error.Message != "" {
		return rec.Error.Message
	}
	if rec.Message != "" {
		return rec.Message
	}
	return "Unknown error"
}

// StreamAccumulator folds streamed engine lines into a final result.
// Token counts and response text come from the last result record; the
// error, if any, from the first error record.
type StreamAccumulator struct {
	Response     string
	ErrorMessage string
	CostUSD      float64
	InputTokens  int
	OutputTokens int
}

// Consume processes one raw output line.
func (a *StreamAccumulator) Consume(line string) {
	rec, ok := parseStreamLine(line)
	if !ok {
		return
	}

	switch rec.Type {
	case "result":
		a.Response = rec.Result
		if a.Response == "" {
			a.Response = DefaultResponse
		}
		a.InputTokens = rec.Usage.InputTokens
		a.OutputTokens = rec.Usage.OutputTokens
		if rec.TotalCostUSD > 0 {
			a.CostUSD = rec.TotalCostUSD
		}
	case "error":
		if a.ErrorMessage == "" {
			if rec.Error.Message != "" {
				a.ErrorMessage = rec.Error.Message
			} else if rec.Message != "" {
				a.ErrorMessage = rec.Message
			} else {
				a.ErrorMessage = "Unknown error"
			}
		}
	}
}
