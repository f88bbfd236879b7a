// Package stats derives dashboard figures from issue lists already loaded in memory.
// Every function preserves input order and never mutates its argument.
package stats

import (
	"strings"
	"time"

	"civicreport-be/models"
)

// View selects which fields a search inspects.
type View int

const (
	CitizenView View = iota
	AuthorityView
)

// AllFilter disables category/priority filtering.
const AllFilter = "all"

// CountByStatus counts issues whose status equals status exactly.
func CountByStatus(issues []models.IssueView, status models.IssueStatus) int {
	n := 0
	for i := range issues {
		if issues[i].Status == status {
			n++
		}
	}
	return n
}

// SameDay reports whether t falls on the same calendar day as now, in now's location.
func SameDay(t, now time.Time) bool {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	return ty == ny && tm == nm && td == nd
}

// CountResolvedToday counts resolved issues last updated on now's calendar day.
func CountResolvedToday(issues []models.IssueView, now time.Time) int {
	n := 0
	for i := range issues {
		if issues[i].Status == models.Resolved && SameDay(issues[i].UpdatedAt, now) {
			n++
		}
	}
	return n
}

// FilterBySearch keeps issues whose title, description, location or reporter name
// contains query, ignoring case. The authority view also searches the department.
func FilterBySearch(issues []models.IssueView, query string, view View) []models.IssueView {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return issues
	}

	out := make([]models.IssueView, 0, len(issues))
	for _, issue := range issues {
		fields := []string{issue.Title, issue.Description, issue.LocationDescription, issue.ReporterName}
		if view == AuthorityView {
			fields = append(fields, issue.Department())
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, issue)
				break
			}
		}
	}
	return out
}

// ValidFilter reports whether key selects anything FilterByCategory understands:
// empty, "all", a priority or part of a category name.
func ValidFilter(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == AllFilter || models.IssuePriority(key).Valid() {
		return true
	}
	catKey := strings.ReplaceAll(key, "_", "-")
	for _, c := range models.Categories() {
		if strings.Contains(string(c), catKey) {
			return true
		}
	}
	return false
}

// FilterByCategory applies a dashboard filter key. A key naming a priority matches
// that priority exactly; any other key matches categories containing it, so "water"
// selects water-utilities. Underscores in the key are read as hyphens.
func FilterByCategory(issues []models.IssueView, key string) []models.IssueView {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == AllFilter {
		return issues
	}
	catKey := strings.ReplaceAll(key, "_", "-")

	out := make([]models.IssueView, 0, len(issues))
	for _, issue := range issues {
		if issue.Priority != nil && string(*issue.Priority) == key {
			out = append(out, issue)
			continue
		}
		if strings.Contains(strings.ToLower(string(issue.Category)), catKey) {
			out = append(out, issue)
		}
	}
	return out
}

// AuthoritySummary holds the triage dashboard counters.
type AuthoritySummary struct {
	Pending       int `json:"pending"`
	InProgress    int `json:"in_progress"`
	Resolved      int `json:"resolved"`
	ResolvedToday int `json:"resolved_today"`
}

func SummarizeForAuthority(issues []models.IssueView, now time.Time) AuthoritySummary {
	return AuthoritySummary{
		Pending:       CountByStatus(issues, models.Pending),
		InProgress:    CountByStatus(issues, models.InProgress),
		Resolved:      CountByStatus(issues, models.Resolved),
		ResolvedToday: CountResolvedToday(issues, now),
	}
}

// CitizenSummary holds the counters shown on a reporter's own dashboard.
type CitizenSummary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Active   int `json:"active"`
}

func SummarizeForCitizen(issues []models.IssueView) CitizenSummary {
	resolved := CountByStatus(issues, models.Resolved)
	return CitizenSummary{
		Total:    len(issues),
		Resolved: resolved,
		Active:   len(issues) - resolved,
	}
}
