// Package logging provides file-based logging for herd runs.
// It writes to a global log (<gitdir>/herd/logs/herd.log) and per-agent
// log files (agent-N.log).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/herdctl/herd/internal/domain"
)

// Ensure Logger implements domain.Logger.
var _ domain.Logger = (*Logger)(nil)

// Logger writes leveled log lines to the herd log directory.
// Fields are ordered to minimize memory padding.
type Logger struct {
	globalFile *os.File
	agentFiles map[int]*os.File
	herdDir    string
	mu         sync.Mutex
	level      slog.Level
}

// New creates a Logger writing under herdDir. An empty herdDir disables
// logging entirely.
func New(herdDir string, level slog.Level) *Logger {
	return &Logger{
		herdDir:    herdDir,
		level:      level,
		agentFiles: make(map[int]*os.File),
	}
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) ensureLogsDir() error {
	return os.MkdirAll(filepath.Join(l.herdDir, "logs"), 0o750)
}

func (l *Logger) ensureGlobalFile() (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.globalFile != nil {
		return l.globalFile, nil
	}
	if err := l.ensureLogsDir(); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	path := domain.GlobalLogPath(l.herdDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open global log file: %w", err)
	}
	l.globalFile = f
	return f, nil
}

func (l *Logger) ensureAgentFile(agentNum int) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.agentFiles[agentNum]; ok {
		return f, nil
	}
	if err := l.ensureLogsDir(); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	path := domain.AgentLogPath(l.herdDir, agentNum)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open agent log file: %w", err)
	}
	l.agentFiles[agentNum] = f
	return f, nil
}

// Close closes all open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	if l.globalFile != nil {
		if err := l.globalFile.Close(); err != nil {
			lastErr = err
		}
		l.globalFile = nil
	}
	for num, f := range l.agentFiles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(l.agentFiles, num)
	}
	return lastErr
}

// formatLog formats one entry.
// Format: [2025-12-30 09:32:51] [INFO] [agent-1] [category] message
func formatLog(t time.Time, level slog.Level, agentNum int, category, msg string) string {
	scope := "global"
	if agentNum > 0 {
		scope = fmt.Sprintf("agent-%d", agentNum)
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		scope,
		category,
		msg,
	)
}

func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// log writes an entry to the global log, and to the agent log when
// agentNum is positive. Write failures are ignored.
func (l *Logger) log(level slog.Level, agentNum int, category, msg string) {
	if l.herdDir == "" {
		return
	}
	if level < l.level {
		return
	}

	entry := formatLog(time.Now(), level, agentNum, category, msg)

	if gf, err := l.ensureGlobalFile(); err == nil {
		_, _ = io.WriteString(gf, entry)
	}
	if agentNum > 0 {
		if af, err := l.ensureAgentFile(agentNum); err == nil {
			_, _ = io.WriteString(af, entry)
		}
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(agentNum int, category, msg string) {
	l.log(slog.LevelDebug, agentNum, category, msg)
}

// Info logs an info message.
func (l *Logger) Info(agentNum int, category, msg string) {
	l.log(slog.LevelInfo, agentNum, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(agentNum int, category, msg string) {
	l.log(slog.LevelWarn, agentNum, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(agentNum int, category, msg string) {
	l.log(slog.LevelError, agentNum, category, msg)
}
