package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// SessionPrefix is the fixed product prefix for tmux session names.
const SessionPrefix = "herd"

// MetadataDir is the per-workspace metadata directory name.
const MetadataDir = ".herd"

// slugPattern matches every character that is not kept in a slug.
var slugPattern = regexp.MustCompile(`[^a-z0-9-]`)

// Slug derives a filesystem- and tmux-safe slug from a task title.
// Lower-cased, every character outside [a-z0-9-] replaced by '-'.
func Slug(title string) string {
	return slugPattern.ReplaceAllString(strings.ToLower(title), "-")
}

// SessionName returns the tmux session name for an agent.
// Format: herd-<agentNum>-<slug>.
func SessionName(agentNum int, taskTitle string) string {
	return fmt.Sprintf("%s-%d-%s", SessionPrefix, agentNum, Slug(taskTitle))
}

// sessionPattern matches session names produced by SessionName.
var sessionPattern = regexp.MustCompile(`^` + SessionPrefix + `-[a-z0-9-]+-[a-z0-9-]+$`)

// IsSessionName reports whether name follows the herd session convention.
func IsSessionName(name string) bool {
	return sessionPattern.MatchString(name)
}

// BranchName returns the branch an agent works on.
// Format: herd-<agentNum>-<slug>.
func BranchName(agentNum int, taskTitle string) string {
	return fmt.Sprintf("%s-%d-%s", SessionPrefix, agentNum, Slug(taskTitle))
}

// StatePath returns the path of the state file inside a workspace.
func StatePath(workDir string) string {
	return filepath.Join(workDir, MetadataDir, "state.json")
}

// ProgressLogPath returns the path of the per-workspace progress file.
func ProgressLogPath(workDir string) string {
	return filepath.Join(workDir, MetadataDir, "progress.log")
}

// ConfigPath returns the path of the workspace configuration file.
func ConfigPath(workDir string) string {
	return filepath.Join(workDir, MetadataDir, "config.toml")
}

// TmpDir returns the multiplexer scratch directory inside a workspace.
func TmpDir(workspaceDir string) string {
	return filepath.Join(workspaceDir, MetadataDir, "tmp")
}

// OutFilePath returns the multiplexer output capture file for a session.
func OutFilePath(workspaceDir, sessionName string) string {
	return filepath.Join(TmpDir(workspaceDir), sessionName+".out")
}

// ExitFilePath returns the multiplexer exit-status file for a session.
func ExitFilePath(workspaceDir, sessionName string) string {
	return filepath.Join(TmpDir(workspaceDir), sessionName+".exit")
}

// GlobalLogPath returns the path to the global run log.
func GlobalLogPath(herdDir string) string {
	return filepath.Join(herdDir, "logs", "herd.log")
}

// AgentLogPath returns the path to an agent's log file.
func AgentLogPath(herdDir string, agentNum int) string {
	return filepath.Join(herdDir, "logs", fmt.Sprintf("agent-%d.log", agentNum))
}
