package usecase

import (
	"fmt"
	"strings"
)

// PromptFlags tune the generated task prompt.
type PromptFlags struct {
	SkipTests      bool // Omit the testing instruction
	SkipLint       bool // Omit the linting instruction
	BrowserEnabled bool // Allow browser-based verification
}

// BuildTaskPrompt renders the prompt an agent receives for one task.
func BuildTaskPrompt(title string, flags PromptFlags) string {
	var b strings.Builder

	b.WriteString("You are an autonomous coding agent working in an isolated git worktree on a dedicated branch.\n\n")
	fmt.Fprintf(&b, "Task: %s\n\n", title)
	b.WriteString("Instructions:\n")
	b.WriteString("- Read the relevant code before changing anything.\n")
	b.WriteString("- Requirement documents, if any, are under .herd/requirements in this directory.\n")
	b.WriteString("- Implement the task completely; partial work is a failure.\n")
	if !flags.SkipTests {
		b.WriteString("- Write tests for your changes and run the project's test suite.\n")
	}
	if !flags.SkipLint {
		b.WriteString("- Run the project's linter and fix anything it reports.\n")
	}
	if flags.BrowserEnabled {
		b.WriteString("- A browser is available; use it to verify web UI changes.\n")
	}
	b.WriteString("- Stage and commit all of your work with git when done. Do not push.\n")

	return b.String()
}

// BuildConflictPrompt renders the prompt used to resolve a conflicted merge.
func BuildConflictPrompt(branch string, conflictedFiles []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A merge of branch %q is in progress and has conflicts in these files:\n", branch)
	for _, f := range conflictedFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nResolve every conflict, keeping the intent of both sides. ")
	b.WriteString("Remove all conflict markers, then stage the resolved files with git add. ")
	b.WriteString("Do not commit; the orchestrator concludes the merge.\n")

	return b.String()
}
