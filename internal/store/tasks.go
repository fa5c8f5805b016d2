package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

type Task struct {
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Deadline    *time.Time `json:"deadline"`
	Status      string     `json:"status"`
	Assignee    string     `json:"assignee"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

type TaskCreate struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Deadline    string   `json:"deadline"`
	Assignee    string   `json:"assignee"`
	Tags        []string `json:"tags"`
}

// TaskUpdate uses pointers so absent fields are left untouched.
type TaskUpdate struct {
	Status      *string   `json:"status"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	Deadline    *string   `json:"deadline"`
	Assignee    *string   `json:"assignee"`
	Tags        *[]string `json:"tags"`
}

type TaskFilter struct {
	Status   string
	Assignee string
	Tag      string
}

func validStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// parseDeadline accepts ISO dates (YYYY-MM-DD or full timestamps) and
// relative phrases like "2 days", "1 week", "3 months". Unparseable input
// is treated as no deadline.
func parseDeadline(s string, now time.Time) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	for kw, unit := range map[string]time.Duration{
		"hour":  time.Hour,
		"day":   24 * time.Hour,
		"week":  7 * 24 * time.Hour,
		"month": 30 * 24 * time.Hour,
	} {
		if strings.Contains(lower, kw) {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, lower)
			n, err := strconv.Atoi(digits)
			if err != nil {
				return nil
			}
			t := now.Add(time.Duration(n) * unit)
			return &t
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// CreateTask validates and stores a new task with status "todo".
func (s *Store) CreateTask(in TaskCreate) (*Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	priority := strings.ToLower(in.Priority)
	if priority == "" {
		priority = "medium"
	}
	assignee := in.Assignee
	if assignee == "" {
		assignee = "me"
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &Task{
		TaskID:      shortID("TASK", 6),
		Title:       in.Title,
		Description: in.Description,
		Priority:    priority,
		Deadline:    parseDeadline(in.Deadline, now),
		Status:      StatusTodo,
		Assignee:    assignee,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks = append(s.tasks, t)
	cp := *t
	return &cp, nil
}

func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTaskLocked(id)
	if t == nil {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) findTaskLocked(id string) *Task {
	for _, t := range s.tasks {
		if t.TaskID == id {
			return t
		}
	}
	return nil
}

// ListTasks returns tasks matching the filter in insertion order.
func (s *Store) ListTasks(f TaskFilter) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != strings.ToLower(f.Status) {
			continue
		}
		if f.Assignee != "" && !strings.EqualFold(t.Assignee, f.Assignee) {
			continue
		}
		if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
			continue
		}
		out = append(out, *t)
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// UpdateTask applies the set fields. A status change to "completed" stamps
// completed_at; invalid statuses are rejected.
func (s *Store) UpdateTask(id string, in TaskUpdate) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTaskLocked(id)
	if t == nil {
		return nil, ErrNotFound
	}
	now := s.now()
	if in.Status != nil {
		status := strings.ToLower(*in.Status)
		if !validStatus(status) {
			return nil, fmt.Errorf("invalid status %q, must be one of: %s, %s, %s",
				*in.Status, StatusTodo, StatusInProgress, StatusCompleted)
		}
		t.Status = status
		if status == StatusCompleted {
			t.CompletedAt = &now
		}
	}
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil {
		t.Priority = strings.ToLower(*in.Priority)
	}
	if in.Deadline != nil {
		t.Deadline = parseDeadline(*in.Deadline, now)
	}
	if in.Assignee != nil {
		t.Assignee = *in.Assignee
	}
	if in.Tags != nil {
		t.Tags = *in.Tags
	}
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.TaskID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
