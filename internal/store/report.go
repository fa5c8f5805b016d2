package store

import (
	"math"
	"strings"
	"time"
)

type StatusBreakdown struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Todo       int `json:"todo"`
}

type PriorityBreakdown struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

type ProductivityReport struct {
	PeriodDays           int               `json:"period_days"`
	Assignee             string            `json:"assignee"`
	TotalTasks           int               `json:"total_tasks"`
	StatusBreakdown      StatusBreakdown   `json:"status_breakdown"`
	PriorityBreakdown    PriorityBreakdown `json:"priority_breakdown"`
	CompletionRate       float64           `json:"completion_rate"`
	AverageCompletionHrs *float64          `json:"average_completion_hours"`
	TotalMinutesLogged   int               `json:"total_minutes_logged"`
	TotalHoursLogged     float64           `json:"total_hours_logged"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Report aggregates tasks created within the last `days` days for the given
// assignee ("" or "all" for everyone), plus minutes logged in the same
// window.
func (s *Store) Report(assignee string, days int) ProductivityReport {
	if days <= 0 {
		days = 30
	}
	all := assignee == "" || strings.EqualFold(assignee, "all")

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	r := ProductivityReport{PeriodDays: days, Assignee: "all"}
	if !all {
		r.Assignee = assignee
	}

	var completionHours []float64
	for _, t := range s.tasks {
		if !all && !strings.EqualFold(t.Assignee, assignee) {
			continue
		}
		if t.CreatedAt.Before(cutoff) {
			continue
		}
		r.TotalTasks++
		switch t.Status {
		case StatusCompleted:
			r.StatusBreakdown.Completed++
			if t.CompletedAt != nil {
				completionHours = append(completionHours, t.CompletedAt.Sub(t.CreatedAt).Hours())
			}
		case StatusInProgress:
			r.StatusBreakdown.InProgress++
		case StatusTodo:
			r.StatusBreakdown.Todo++
		}
		switch t.Priority {
		case "high":
			r.PriorityBreakdown.High++
		case "medium":
			r.PriorityBreakdown.Medium++
		case "low":
			r.PriorityBreakdown.Low++
		}
	}

	if r.TotalTasks > 0 {
		r.CompletionRate = round2(float64(r.StatusBreakdown.Completed) / float64(r.TotalTasks) * 100)
	}
	if len(completionHours) > 0 {
		var sum float64
		for _, h := range completionHours {
			sum += h
		}
		avg := round2(sum / float64(len(completionHours)))
		r.AverageCompletionHrs = &avg
	}

	from := cutoff.Format("2006-01-02")
	to := now.Format("2006-01-02")
	for _, e := range s.hours {
		if !all && !strings.EqualFold(e.UserID, assignee) {
			continue
		}
		if e.Date < from || e.Date > to {
			continue
		}
		r.TotalMinutesLogged += e.Minutes
	}
	r.TotalHoursLogged = round2(float64(r.TotalMinutesLogged) / 60)

	return r
}
