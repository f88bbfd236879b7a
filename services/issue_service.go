package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicreport-be/lifecycle"
	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/repositories"
	"civicreport-be/stats"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MapPinLimit is how many recent geolocated issues the map shows.
const MapPinLimit = 19

// Deliverer forwards committed notifications to out-of-band channels.
type Deliverer interface {
	Deliver(ctx context.Context, notifications []models.Notification)
}

type IssueDeps struct {
	Tx            repositories.Transactor
	Issues        repositories.IssueRepository
	Updates       repositories.UpdateRepository
	Upvotes       repositories.UpvoteRepository
	Comments      repositories.CommentRepository
	Photos        repositories.PhotoRepository
	Notifications repositories.NotificationRepository
	Location      *LocationService
	Push          Deliverer
	Log           *logger.Logger
	Clock         func() time.Time
}

type IssueService struct {
	tx            repositories.Transactor
	issues        repositories.IssueRepository
	updates       repositories.UpdateRepository
	upvotes       repositories.UpvoteRepository
	comments      repositories.CommentRepository
	photos        repositories.PhotoRepository
	notifications repositories.NotificationRepository
	location      *LocationService
	push          Deliverer
	log           *logger.Logger
	now           func() time.Time
}

func NewIssueService(deps IssueDeps) *IssueService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &IssueService{
		tx:            deps.Tx,
		issues:        deps.Issues,
		updates:       deps.Updates,
		upvotes:       deps.Upvotes,
		comments:      deps.Comments,
		photos:        deps.Photos,
		notifications: deps.Notifications,
		location:      deps.Location,
		push:          deps.Push,
		log:           deps.Log,
		now:           clock,
	}
}

// deliver hands notifications to the push pipeline once their transaction committed.
func (s *IssueService) deliver(ctx context.Context, notifications []models.Notification) {
	if s.push != nil && len(notifications) > 0 {
		s.push.Deliver(ctx, notifications)
	}
}

func (s *IssueService) notify(ctx context.Context, issue *models.Issue, typ models.NotificationType, title, message string) (models.Notification, error) {
	issueID := issue.ID
	n := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    *issue.ReportedBy,
		Title:     title,
		Message:   message,
		Type:      typ,
		IssueID:   &issueID,
		CreatedAt: s.now(),
	}
	if err := s.notifications.Insert(ctx, &n); err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// CreateIssueInput is what a citizen submits when reporting.
type CreateIssueInput struct {
	Title               string
	Description         string
	Category            models.IssueCategory
	LocationDescription string
	Address             *string
	Latitude            *float64
	Longitude           *float64
	IsAnonymous         bool
}

// Create stores a new pending issue. Without explicit coordinates the caller's
// pending map selection is consumed; the location text falls back to its label.
func (s *IssueService) Create(ctx context.Context, actor Actor, in CreateIssueInput) (*models.Issue, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.LocationDescription = strings.TrimSpace(in.LocationDescription)

	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	case in.Description == "":
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	case !in.Category.Valid():
		return nil, fmt.Errorf("%w: invalid category", ErrInvalidInput)
	case (in.Latitude == nil) != (in.Longitude == nil):
		return nil, fmt.Errorf("%w: latitude and longitude go together", ErrInvalidInput)
	case in.Latitude != nil && !ValidCoordinates(*in.Latitude, *in.Longitude):
		return nil, ErrInvalidCoordinates
	}

	if in.Latitude == nil && s.location != nil {
		pending, err := s.location.Take(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if pending.Coordinates != nil {
			in.Latitude = &pending.Coordinates.Latitude
			in.Longitude = &pending.Coordinates.Longitude
		}
		if in.LocationDescription == "" {
			in.LocationDescription = pending.Label
		}
	}
	if in.LocationDescription == "" {
		in.LocationDescription = DefaultLocationLabel
	}

	now := s.now()
	issue := &models.Issue{
		ID:                  primitive.NewObjectID(),
		Title:               in.Title,
		Description:         in.Description,
		Category:            in.Category,
		LocationDescription: in.LocationDescription,
		Address:             trimmed(in.Address),
		Latitude:            in.Latitude,
		Longitude:           in.Longitude,
		IsAnonymous:         in.IsAnonymous,
		SubmittedBy:         actor.ID,
		Status:              models.Pending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if !in.IsAnonymous {
		reporter := actor.ID
		issue.ReportedBy = &reporter
	}

	if err := s.issues.Insert(ctx, issue); err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	return issue, nil
}

// IssueDetail is a single issue as shown on its page.
type IssueDetail struct {
	models.Issue
	UserHasVoted bool                `json:"user_has_voted"`
	Photos       []models.IssuePhoto `json:"photos"`
}

func (s *IssueService) Get(ctx context.Context, actor Actor, id primitive.ObjectID) (*IssueDetail, error) {
	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	voted, err := s.upvotes.Voted(ctx, actor.ID, []primitive.ObjectID{id})
	if err != nil {
		return nil, err
	}

	detail := &IssueDetail{Issue: *issue, UserHasVoted: voted[id], Photos: []models.IssuePhoto{}}
	if s.photos != nil {
		if detail.Photos, err = s.photos.ListByIssue(ctx, id); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func (s *IssueService) markVoted(ctx context.Context, actor Actor, views []models.IssueView) error {
	ids := make([]primitive.ObjectID, len(views))
	for i := range views {
		ids[i] = views[i].ID
	}
	voted, err := s.upvotes.Voted(ctx, actor.ID, ids)
	if err != nil {
		return err
	}
	for i := range views {
		views[i].UserHasVoted = voted[views[i].ID]
	}
	return nil
}

// MyIssues is the reporter's dashboard.
type MyIssues struct {
	Issues  []models.IssueView   `json:"issues"`
	Summary stats.CitizenSummary `json:"summary"`
}

// ListMine returns the caller's own reports newest first, anonymous ones
// included. The summary always covers every report; search only narrows the list.
func (s *IssueService) ListMine(ctx context.Context, actor Actor, search string) (*MyIssues, error) {
	submitter := actor.ID
	views, err := s.issues.List(ctx, repositories.IssueFilter{SubmittedBy: &submitter})
	if err != nil {
		return nil, err
	}
	if err := s.markVoted(ctx, actor, views); err != nil {
		return nil, err
	}

	return &MyIssues{
		Issues:  stats.FilterBySearch(views, search, stats.CitizenView),
		Summary: stats.SummarizeForCitizen(views),
	}, nil
}

// TriageList is the authority dashboard.
type TriageList struct {
	Issues  []models.IssueView     `json:"issues"`
	Summary stats.AuthoritySummary `json:"summary"`
}

func (s *IssueService) ListForTriage(ctx context.Context, actor Actor, search, filter string) (*TriageList, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	views, err := s.issues.List(ctx, repositories.IssueFilter{})
	if err != nil {
		return nil, err
	}

	filtered := stats.FilterByCategory(stats.FilterBySearch(views, search, stats.AuthorityView), filter)
	return &TriageList{
		Issues:  filtered,
		Summary: stats.SummarizeForAuthority(views, s.now()),
	}, nil
}

// MapPins returns the most recent issues that carry coordinates.
func (s *IssueService) MapPins(ctx context.Context) ([]models.IssueView, error) {
	return s.issues.List(ctx, repositories.IssueFilter{WithCoordinates: true, Limit: MapPinLimit})
}

func (s *IssueService) Analytics(ctx context.Context, actor Actor) (*repositories.IssueAnalytics, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return s.issues.Analytics(ctx, s.now())
}

// Timeline lists status updates oldest first; internal entries only for authorities.
func (s *IssueService) Timeline(ctx context.Context, actor Actor, id primitive.ObjectID) ([]models.IssueUpdate, error) {
	if _, err := s.issues.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.updates.ListByIssue(ctx, id, actor.IsAuthority())
}

// StatusChange describes a requested transition.
type StatusChange struct {
	Status     models.IssueStatus
	Message    string
	IsInternal bool
	Reopen     bool
}

func (c StatusChange) action() lifecycle.Action {
	if c.Reopen {
		return lifecycle.Reopen
	}
	return lifecycle.Advance
}

// transition applies one status change inside the caller's transaction: it writes
// the status, appends the timeline entry and emits the reporter notifications.
func (s *IssueService) transition(ctx context.Context, actor Actor, issue *models.Issue, change StatusChange, now time.Time) ([]models.Notification, error) {
	if err := lifecycle.CheckTransition(issue.Status, change.Status, change.action()); err != nil {
		return nil, err
	}
	if err := s.issues.SetStatus(ctx, issue.ID, change.Status, now); err != nil {
		return nil, fmt.Errorf("set status of %s: %w", issue.ID.Hex(), err)
	}

	message := strings.TrimSpace(change.Message)
	if message == "" {
		message = lifecycle.DefaultMessage(change.Status, change.action())
	}
	author := actor.ID
	update := &models.IssueUpdate{
		ID:         primitive.NewObjectID(),
		IssueID:    issue.ID,
		Message:    message,
		Status:     change.Status,
		UpdatedBy:  &author,
		IsInternal: change.IsInternal,
		CreatedAt:  now,
	}
	if err := s.updates.Insert(ctx, update); err != nil {
		return nil, fmt.Errorf("append update to %s: %w", issue.ID.Hex(), err)
	}

	var emitted []models.Notification
	for _, effect := range lifecycle.Effects(issue, change.Status) {
		n, err := s.notify(ctx, issue, effect.Type, effect.Title, effect.Message)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, n)
	}

	issue.Status = change.Status
	issue.UpdatedAt = now
	return emitted, nil
}

// SetStatus moves one issue through the lifecycle.
func (s *IssueService) SetStatus(ctx context.Context, actor Actor, id primitive.ObjectID, change StatusChange) (*models.Issue, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if !change.Status.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, lifecycle.ErrUnknownStatus)
	}

	var (
		issue   *models.Issue
		emitted []models.Notification
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if issue, err = s.issues.FindByID(ctx, id); err != nil {
			return err
		}
		emitted, err = s.transition(ctx, actor, issue, change, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, emitted)
	return issue, nil
}

// BulkSetStatus applies one transition to every id atomically: any invalid
// transition or failed write leaves all issues untouched.
func (s *IssueService) BulkSetStatus(ctx context.Context, actor Actor, ids []primitive.ObjectID, change StatusChange) (int, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no issues selected", ErrInvalidInput)
	}
	if !change.Status.Valid() {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, lifecycle.ErrUnknownStatus)
	}

	var emitted []models.Notification
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		emitted = emitted[:0]
		now := s.now()
		for _, id := range ids {
			issue, err := s.issues.FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("issue %s: %w", id.Hex(), err)
			}
			out, err := s.transition(ctx, actor, issue, change, now)
			if err != nil {
				return fmt.Errorf("issue %s: %w", id.Hex(), err)
			}
			emitted = append(emitted, out...)
		}
		return nil
	})
	if err != nil {
		s.log.WithUserID(actor.ID.Hex()).WithError(err).Warn("bulk status update aborted")
		return 0, err
	}

	s.deliver(ctx, emitted)
	return len(ids), nil
}

// BulkAssign sets the department of every id atomically.
func (s *IssueService) BulkAssign(ctx context.Context, actor Actor, ids []primitive.ObjectID, department string) (int, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	ids = uniqueIDs(ids)
	department = strings.TrimSpace(department)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no issues selected", ErrInvalidInput)
	}
	if department == "" {
		return 0, fmt.Errorf("%w: department is required", ErrInvalidInput)
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		matched, err := s.issues.Triage(ctx, ids, repositories.TriagePatch{AssignedDepartment: &department}, s.now())
		if err != nil {
			return err
		}
		if matched != int64(len(ids)) {
			return fmt.Errorf("%d of %d issues: %w", int64(len(ids))-matched, len(ids), ErrNotFound)
		}
		return nil
	})
	if err != nil {
		s.log.WithUserID(actor.ID.Hex()).WithError(err).Warn("bulk assignment aborted")
		return 0, err
	}
	return len(ids), nil
}

// TriageInput holds the authority-owned fields of one issue.
type TriageInput struct {
	Priority   *models.IssuePriority
	Department *string
	AssignedTo *primitive.ObjectID
}

func (s *IssueService) Triage(ctx context.Context, actor Actor, id primitive.ObjectID, in TriageInput) (*models.Issue, error) {
	if err := lifecycle.Authorize(actor.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if in.Priority == nil && in.Department == nil && in.AssignedTo == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: invalid priority", ErrInvalidInput)
	}

	patch := repositories.TriagePatch{
		Priority:           in.Priority,
		AssignedDepartment: trimmed(in.Department),
		AssignedTo:         in.AssignedTo,
	}
	matched, err := s.issues.Triage(ctx, []primitive.ObjectID{id}, patch, s.now())
	if err != nil {
		return nil, err
	}
	if matched == 0 {
		return nil, ErrNotFound
	}
	return s.issues.FindByID(ctx, id)
}

// UpvoteResult is the caller's upvote state after a toggle.
type UpvoteResult struct {
	Voted bool `json:"voted"`
	Count int  `json:"upvotes_count"`
}

// ToggleUpvote adds the caller's upvote or takes it back. The row change and the
// counter $inc share one transaction, so the counter tracks the row aggregate.
func (s *IssueService) ToggleUpvote(ctx context.Context, actor Actor, id primitive.ObjectID) (*UpvoteResult, error) {
	var (
		result  UpvoteResult
		emitted []models.Notification
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		emitted = nil
		issue, err := s.issues.FindByID(ctx, id)
		if err != nil {
			return err
		}

		removed, err := s.upvotes.Remove(ctx, id, actor.ID)
		if err != nil {
			return fmt.Errorf("remove upvote: %w", err)
		}
		if removed {
			result.Voted = false
			result.Count, err = s.issues.IncrementUpvotes(ctx, id, -1)
			return err
		}

		if err := s.upvotes.Add(ctx, id, actor.ID, s.now()); err != nil {
			return fmt.Errorf("add upvote: %w", err)
		}
		result.Voted = true
		if result.Count, err = s.issues.IncrementUpvotes(ctx, id, 1); err != nil {
			return err
		}

		if issue.HasReporter() && *issue.ReportedBy != actor.ID {
			n, err := s.notify(ctx, issue, models.NewUpvote, "New upvote",
				fmt.Sprintf("Someone upvoted your report %q.", issue.Title))
			if err != nil {
				return err
			}
			emitted = append(emitted, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, emitted)
	return &result, nil
}

// CommentInput is a new comment on an issue.
type CommentInput struct {
	Content         string
	IsInternal      bool
	ParentCommentID *primitive.ObjectID
}

const maxCommentLength = 2000

// AddComment stores a comment. comments_count tracks public comments only, so it
// matches what any caller can list. Internal comments are for authorities only and
// never notify; a public comment by an authority reaches the reporter as an
// authority response.
func (s *IssueService) AddComment(ctx context.Context, actor Actor, id primitive.ObjectID, in CommentInput) (*models.IssueComment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" || len(in.Content) > maxCommentLength {
		return nil, fmt.Errorf("%w: comment must be 1-%d characters", ErrInvalidInput, maxCommentLength)
	}
	if in.IsInternal && !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: internal comments are for authorities", ErrForbidden)
	}

	var (
		comment *models.IssueComment
		emitted []models.Notification
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		emitted = nil
		issue, err := s.issues.FindByID(ctx, id)
		if err != nil {
			return err
		}

		now := s.now()
		comment = &models.IssueComment{
			ID:              primitive.NewObjectID(),
			IssueID:         id,
			UserID:          actor.ID,
			Content:         in.Content,
			IsInternal:      in.IsInternal,
			ParentCommentID: in.ParentCommentID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.comments.Insert(ctx, comment); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if in.IsInternal {
			return nil
		}
		if _, err := s.issues.IncrementComments(ctx, id, 1); err != nil {
			return err
		}

		if !issue.HasReporter() || *issue.ReportedBy == actor.ID {
			return nil
		}
		typ, title := models.NewComment, "New comment"
		if actor.IsAuthority() {
			typ, title = models.AuthorityResponse, "Response from the authorities"
		}
		n, err := s.notify(ctx, issue, typ, title, fmt.Sprintf("New comment on %q: %s", issue.Title, preview(in.Content)))
		if err != nil {
			return err
		}
		emitted = append(emitted, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, emitted)
	return comment, nil
}

func (s *IssueService) ListComments(ctx context.Context, actor Actor, id primitive.ObjectID) ([]models.IssueComment, error) {
	if _, err := s.issues.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.comments.ListByIssue(ctx, id, actor.IsAuthority())
}

func preview(s string) string {
	const limit = 80
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// IsTransitionError reports whether err came from the lifecycle policy.
func IsTransitionError(err error) bool {
	return errors.Is(err, lifecycle.ErrNoOpTransition) ||
		errors.Is(err, lifecycle.ErrBackwardTransition) ||
		errors.Is(err, lifecycle.ErrNotReopen)
}
