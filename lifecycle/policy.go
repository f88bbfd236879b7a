// Package lifecycle holds the issue status transition table.
package lifecycle

import (
	"errors"
	"fmt"

	"civicreport-be/models"
)

var (
	ErrUnknownStatus      = errors.New("unknown issue status")
	ErrNoOpTransition     = errors.New("issue already has this status")
	ErrBackwardTransition = errors.New("backward status change requires reopen")
	ErrNotReopen          = errors.New("reopen must move an issue backward")
	ErrNotAuthority       = errors.New("only authorities can change issue status")
)

// rank orders statuses along the forward flow.
var rank = map[models.IssueStatus]int{
	models.Pending:    0,
	models.InProgress: 1,
	models.Resolved:   2,
}

// Action distinguishes a normal status change from an explicit reopen.
type Action int

const (
	Advance Action = iota
	Reopen
)

// CheckTransition validates moving from one status to another.
func CheckTransition(from, to models.IssueStatus, action Action) error {
	fr, ok := rank[from]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	tr, ok := rank[to]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}

	switch {
	case fr == tr:
		return fmt.Errorf("%w: %s", ErrNoOpTransition, to)
	case action == Reopen && tr > fr:
		return fmt.Errorf("%w: %s -> %s", ErrNotReopen, from, to)
	case action == Advance && tr < fr:
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, from, to)
	}
	return nil
}

// Authorize re-checks the actor's role at the point of execution.
func Authorize(role models.UserRole) error {
	if role != models.Authority {
		return ErrNotAuthority
	}
	return nil
}

// DefaultMessage is the timeline text used when the actor gives none.
func DefaultMessage(to models.IssueStatus, action Action) string {
	if action == Reopen {
		return fmt.Sprintf("Issue reopened as %s", to)
	}
	switch to {
	case models.InProgress:
		return "Work on this issue has started"
	case models.Resolved:
		return "This issue has been resolved"
	}
	return fmt.Sprintf("Status changed to %s", to)
}

// Effect is a notification a transition asks the caller to emit.
type Effect struct {
	Type    models.NotificationType
	Title   string
	Message string
}

// Effects returns the notifications owed to the reporter for a transition.
// Only a move to resolved notifies, and only when the issue has a reporter.
func Effects(issue *models.Issue, to models.IssueStatus) []Effect {
	if to != models.Resolved || !issue.HasReporter() {
		return nil
	}
	return []Effect{{
		Type:    models.StatusUpdate,
		Title:   "Issue resolved",
		Message: fmt.Sprintf("Your report %q has been marked as resolved.", issue.Title),
	}}
}
