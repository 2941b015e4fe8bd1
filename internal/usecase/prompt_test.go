package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTaskPrompt_Defaults(t *testing.T) {
	prompt := BuildTaskPrompt("Add login form", PromptFlags{})

	assert.Contains(t, prompt, "Task: Add login form")
	assert.Contains(t, prompt, "test suite")
	assert.Contains(t, prompt, "linter")
	assert.NotContains(t, prompt, "browser")
}

func TestBuildTaskPrompt_Flags(t *testing.T) {
	prompt := BuildTaskPrompt("x", PromptFlags{SkipTests: true, SkipLint: true, BrowserEnabled: true})

	assert.NotContains(t, prompt, "test suite")
	assert.NotContains(t, prompt, "linter")
	assert.Contains(t, prompt, "browser")
}

func TestBuildConflictPrompt(t *testing.T) {
	prompt := BuildConflictPrompt("herd-2-fix", []string{"a.go", "b.go"})

	assert.Contains(t, prompt, `"herd-2-fix"`)
	assert.Contains(t, prompt, "- a.go")
	assert.Contains(t, prompt, "- b.go")
	assert.Contains(t, prompt, "Do not commit")
}
