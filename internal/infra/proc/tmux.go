package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/herdctl/herd/internal/domain"
)

// pollInterval is how often the tmux driver checks the output and exit files.
const pollInterval = time.Second

// TmuxOptions selects the multiplexer variant of Execute.
type TmuxOptions struct {
	AgentID      string // Global agent number as decimal string
	TaskSlug     string // Slug of the task title
	WorkspaceDir string // Workspace hosting the tmp files
}

var sessionCharPattern = regexp.MustCompile(`[^a-z0-9-]`)

// DeriveSessionName builds the tmux session name for an agent:
// "herd-<agentId>-<taskSlug>", lower-cased, with every character outside
// [a-z0-9-] replaced by '-'.
func DeriveSessionName(agentID, taskSlug string) string {
	raw := strings.ToLower(fmt.Sprintf("%s-%s-%s", domain.SessionPrefix, agentID, taskSlug))
	return sessionCharPattern.ReplaceAllString(raw, "-")
}

// sessionScript is the bash command run inside the detached session. It pipes
// the target command's merged output through tee into the output file, writes
// the exit status into the exit file, and on a non-zero status prints a debug
// banner and blocks so a human can attach.
const sessionScript = `set -o pipefail
%s 2>&1 | tee %s
status=$?
echo $status > %s
if [ $status -ne 0 ]; then
  echo ''
  echo '=== herd: agent exited with status '"$status"' ==='
  echo '=== this session stays alive for inspection; kill it when done ==='
  while true; do sleep 3600; done
fi`

// ExecuteTmux runs the command inside a detached tmux session and polls its
// captured output at 1 Hz, streaming new lines to onLine. It returns when the
// exit file appears or the session disappears; a vanished session without an
// exit file reports exit code 1. Stdout of the result holds the full captured
// output; stderr is always empty because the streams are merged.
func (d *Driver) ExecuteTmux(ctx context.Context, spec Spec, opts TmuxOptions, onLine func(string)) (*Result, error) {
	session := DeriveSessionName(opts.AgentID, opts.TaskSlug)

	tmpDir := domain.TmpDir(opts.WorkspaceDir)
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return nil, fmt.Errorf("create tmp directory: %w", err)
	}
	outFile := domain.OutFilePath(opts.WorkspaceDir, session)
	exitFile := domain.ExitFilePath(opts.WorkspaceDir, session)
	_ = os.Remove(outFile)
	_ = os.Remove(exitFile)

	script := fmt.Sprintf(sessionScript,
		QuoteCommand(spec.Command, spec.Args),
		ShellQuote(outFile),
		ShellQuote(exitFile),
	)

	args := []string{"new-session", "-d", "-s", session}
	if spec.Dir != "" {
		args = append(args, "-c", spec.Dir)
	}
	args = append(args, "bash", "-c", script)

	// Session names follow the herd naming convention and are safe to pass.
	cmd := exec.CommandContext(ctx, "tmux", args...) //nolint:gosec
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("start tmux session: %w: %s", err, string(out))
	}

	exitCode, err := d.pollSession(ctx, session, outFile, exitFile, onLine)
	if err != nil {
		return nil, err
	}

	captured, _ := os.ReadFile(outFile)
	return &Result{
		Stdout:   string(captured),
		ExitCode: exitCode,
	}, nil
}

// pollSession tails the output file and watches for the exit file, at 1 Hz.
func (d *Driver) pollSession(ctx context.Context, session, outFile, exitFile string, onLine func(string)) (int, error) {
	splitter := newLineSplitter(onLine)
	var offset int64

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		offset = drainOutput(outFile, offset, splitter)

		if code, ok := readExitFile(exitFile); ok {
			offset = drainOutput(outFile, offset, splitter)
			splitter.Flush()
			return code, nil
		}

		if !d.hasSession(session) {
			// Session vanished without writing an exit status.
			splitter.Flush()
			return 1, nil
		}
	}
}

// drainOutput streams bytes past offset from the output file into w.
// Read errors leave the offset unchanged for the next tick.
func drainOutput(outFile string, offset int64, w io.Writer) int64 {
	f, err := os.Open(outFile) //nolint:gosec // path derived from session name
	if err != nil {
		return offset
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}
	n, _ := io.Copy(w, f)
	return offset + n
}

// readExitFile parses the exit file if present.
func readExitFile(exitFile string) (int, bool) {
	data, err := os.ReadFile(exitFile) //nolint:gosec // path derived from session name
	if err != nil {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return code, true
}

// hasSession checks whether a tmux session exists.
func (d *Driver) hasSession(session string) bool {
	cmd := exec.Command("tmux", "has-session", "-t", session) //nolint:gosec
	return cmd.Run() == nil
}

// KillSession best-effort terminates a tmux session. Errors are ignored;
// the session may already be gone.
func (d *Driver) KillSession(session string) {
	cmd := exec.Command("tmux", "kill-session", "-t", session) //nolint:gosec
	_ = cmd.Run()
}
