package store

import (
	"fmt"
	"strings"
	"time"
)

// HoursEntry records minutes worked on a task on a given day. Date is a
// plain YYYY-MM-DD string so window filters compare lexicographically.
type HoursEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Minutes   int       `json:"minutes"`
	Date      string    `json:"date"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type HoursCreate struct {
	TaskID  string `json:"task_id"`
	UserID  string `json:"user_id"`
	Minutes int    `json:"minutes"`
	Date    string `json:"date"`
	Notes   string `json:"notes"`
}

type HoursFilter struct {
	TaskID   string
	UserID   string
	FromDate string
	ToDate   string
}

// normalizeDate reduces ISO timestamps to YYYY-MM-DD. Bad input falls back
// to fallback's date.
func normalizeDate(s string, fallback time.Time) string {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return fallback.Format("2006-01-02")
}

// LogHours validates the referenced task exists and records the entry.
func (s *Store) LogHours(in HoursCreate) (*HoursEntry, error) {
	if in.Minutes <= 0 {
		return nil, fmt.Errorf("minutes must be positive")
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findTaskLocked(in.TaskID) == nil {
		return nil, fmt.Errorf("task %s: %w", in.TaskID, ErrNotFound)
	}
	now := s.now()
	e := &HoursEntry{
		ID:        shortID("WH", 8),
		TaskID:    in.TaskID,
		UserID:    in.UserID,
		Minutes:   in.Minutes,
		Date:      normalizeDate(in.Date, now),
		Notes:     in.Notes,
		CreatedAt: now,
	}
	s.hours = append(s.hours, e)
	cp := *e
	return &cp, nil
}

// ListHours returns entries matching the filter in insertion order. Date
// bounds are inclusive.
func (s *Store) ListHours(f HoursFilter) []HoursEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HoursEntry, 0, len(s.hours))
	for _, e := range s.hours {
		if f.TaskID != "" && e.TaskID != f.TaskID {
			continue
		}
		if f.UserID != "" && !strings.EqualFold(e.UserID, f.UserID) {
			continue
		}
		if f.FromDate != "" && e.Date < f.FromDate {
			continue
		}
		if f.ToDate != "" && e.Date > f.ToDate {
			continue
		}
		out = append(out, *e)
	}
	return out
}
