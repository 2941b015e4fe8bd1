package tasksource

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/herdctl/herd/internal/domain"
)

// checkboxPattern matches Markdown checklist items: "- [ ] Title".
var checkboxPattern = regexp.MustCompile(`^(\s*[-*]\s*\[)( |x|X)(\]\s*)(.+?)\s*$`)

// MarkdownSource reads tasks from a Markdown checklist. Unchecked items are
// remaining tasks; MarkComplete rewrites the item to checked. Task ids are
// slugs of the titles. Markdown sources have no parallel grouping.
type MarkdownSource struct {
	path string
	mu   sync.Mutex
}

// NewMarkdownSource creates a source backed by the given checklist file.
func NewMarkdownSource(path string) *MarkdownSource {
	return &MarkdownSource{path: path}
}

var _ domain.TaskSource = (*MarkdownSource)(nil)

// NextTask returns the first unchecked item, or nil when drained.
func (s *MarkdownSource) NextTask() (*domain.Task, error) {
	tasks, err := s.AllTasks()
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// AllTasks returns all unchecked items in file order.
func (s *MarkdownSource) AllTasks() ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.loadLines()
	if err != nil {
		return nil, err
	}

	var tasks []domain.Task
	for _, line := range lines {
		if m := checkboxPattern.FindStringSubmatch(line); m != nil && m[2] == " " {
			title := m[4]
			tasks = append(tasks, domain.Task{ID: domain.Slug(title), Title: title})
		}
	}
	return tasks, nil
}

// MarkComplete rewrites the first unchecked item with the given id to [x].
func (s *MarkdownSource) MarkComplete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.loadLines()
	if err != nil {
		return err
	}

	for i, line := range lines {
		m := checkboxPattern.FindStringSubmatch(line)
		if m == nil || m[2] != " " {
			continue
		}
		if domain.Slug(m[4]) == id {
			lines[i] = m[1] + "x" + m[3] + m[4]
			return s.saveLines(lines)
		}
	}
	return fmt.Errorf("task %q: %w", id, domain.ErrTaskNotFound)
}

// CountRemaining returns the number of unchecked items.
func (s *MarkdownSource) CountRemaining() (int, error) {
	tasks, err := s.AllTasks()
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func (s *MarkdownSource) loadLines() ([]string, error) {
	content, err := os.ReadFile(s.path) //nolint:gosec // operator-supplied tasks file
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	return strings.Split(string(content), "\n"), nil
}

func (s *MarkdownSource) saveLines(lines []string) error {
	if err := os.WriteFile(s.path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}
