// Package tasksource provides file-backed task source implementations.
package tasksource

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/herdctl/herd/internal/domain"
)

// yamlTask is one entry of the tasks file.
// Fields are ordered to minimize memory padding.
type yamlTask struct {
	ID    string `yaml:"id,omitempty"`
	Title string `yaml:"title"`
	Group int    `yaml:"group,omitempty"`
	Done  bool   `yaml:"done,omitempty"`
}

// yamlFile is the tasks file structure.
type yamlFile struct {
	Tasks []yamlTask `yaml:"tasks"`
}

// YAMLSource reads tasks from a YAML file. Tasks may declare a parallel
// group; tasks sharing a group are dispatched in the same batch.
type YAMLSource struct {
	path string
	mu   sync.Mutex
}

// NewYAMLSource creates a source backed by the given tasks file.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// Ensure YAMLSource implements the task source capability set.
var (
	_ domain.TaskSource      = (*YAMLSource)(nil)
	_ domain.ParallelGrouper = (*YAMLSource)(nil)
)

// NextTask returns the first remaining task, or nil when drained.
func (s *YAMLSource) NextTask() (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, t := range file.Tasks {
		if !t.Done {
			task := toTask(t)
			return &task, nil
		}
	}
	return nil, nil
}

// AllTasks returns all remaining tasks in file order.
func (s *YAMLSource) AllTasks() ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for _, t := range file.Tasks {
		if !t.Done {
			tasks = append(tasks, toTask(t))
		}
	}
	return tasks, nil
}

// ParallelGroup returns the group of the task with the given title.
// 0 means the task is ungrouped.
func (s *YAMLSource) ParallelGroup(title string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return 0, err
	}
	for _, t := range file.Tasks {
		if t.Title == title {
			return t.Group, nil
		}
	}
	return 0, nil
}

// TasksInGroup returns the remaining tasks of a group, in file order.
func (s *YAMLSource) TasksInGroup(group int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for _, t := range file.Tasks {
		if !t.Done && t.Group == group {
			tasks = append(tasks, toTask(t))
		}
	}
	return tasks, nil
}

// MarkComplete persists done: true for the task with the given id.
func (s *YAMLSource) MarkComplete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	for i := range file.Tasks {
		if taskID(file.Tasks[i]) == id {
			file.Tasks[i].Done = true
			return s.save(file)
		}
	}
	return fmt.Errorf("task %q: %w", id, domain.ErrTaskNotFound)
}

// CountRemaining returns the number of remaining tasks.
func (s *YAMLSource) CountRemaining() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range file.Tasks {
		if !t.Done {
			count++
		}
	}
	return count, nil
}

func (s *YAMLSource) load() (*yamlFile, error) {
	content, err := os.ReadFile(s.path) //nolint:gosec // operator-supplied tasks file
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var file yamlFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	return &file, nil
}

func (s *YAMLSource) save(file *yamlFile) error {
	content, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal tasks file: %w", err)
	}
	if err := os.WriteFile(s.path, content, 0o600); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}

// taskID returns the stable identifier of an entry: the declared id, or the
// slug of the title when none is set.
func taskID(t yamlTask) string {
	if t.ID != "" {
		return t.ID
	}
	return domain.Slug(t.Title)
}

func toTask(t yamlTask) domain.Task {
	return domain.Task{ID: taskID(t), Title: t.Title}
}
