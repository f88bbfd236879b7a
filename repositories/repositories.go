// Package repositories maps application queries onto MongoDB collections.
package repositories

import (
	"context"
	"errors"
	"time"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

// Collection names
const (
	IssuesCollection        = "issues"
	UpdatesCollection       = "issue_updates"
	UpvotesCollection       = "issue_upvotes"
	CommentsCollection      = "issue_comments"
	PhotosCollection        = "issue_photos"
	NotificationsCollection = "notifications"
	ProfilesCollection      = "profiles"
)

// Transactor runs fn so that every write made through ctx commits or aborts together.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IssueFilter narrows an issue listing. Results are always newest first.
type IssueFilter struct {
	SubmittedBy     *primitive.ObjectID
	WithCoordinates bool
	Limit           int64
}

// TriagePatch carries the authority-owned fields of an issue. Nil fields are left alone.
type TriagePatch struct {
	Priority           *models.IssuePriority
	AssignedDepartment *string
	AssignedTo         *primitive.ObjectID
}

// CategoryCount is one bucket of the by-category breakdown.
type CategoryCount struct {
	Name  string `bson:"name" json:"name"`
	Value int64  `bson:"value" json:"value"`
}

// DayCount is the number of issues created on one day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// TopIssue is an entry of the most upvoted list.
type TopIssue struct {
	ID           primitive.ObjectID   `bson:"_id" json:"id"`
	Title        string               `bson:"title" json:"title"`
	Category     models.IssueCategory `bson:"category" json:"category"`
	UpvotesCount int                  `bson:"upvotes_count" json:"upvotes_count"`
}

// IssueAnalytics summarizes the whole issue collection.
type IssueAnalytics struct {
	IssuesByCategory []CategoryCount `json:"issues_by_category"`
	Last7Days        []DayCount      `json:"last_7_days"`
	TopUpvoted       []TopIssue      `json:"top_upvoted"`
	TotalIssues      int64           `json:"total_issues"`
	TotalUpvotes     int64           `json:"total_upvotes"`
	OpenIssues       int64           `json:"open_issues"`
}

type IssueRepository interface {
	Insert(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]models.IssueView, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.IssueStatus, now time.Time) error
	Triage(ctx context.Context, ids []primitive.ObjectID, patch TriagePatch, now time.Time) (int64, error)
	IncrementUpvotes(ctx context.Context, id primitive.ObjectID, delta int) (int, error)
	IncrementComments(ctx context.Context, id primitive.ObjectID, delta int) (int, error)
	Analytics(ctx context.Context, now time.Time) (*IssueAnalytics, error)
}

type UpdateRepository interface {
	Insert(ctx context.Context, update *models.IssueUpdate) error
	ListByIssue(ctx context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueUpdate, error)
}

type UpvoteRepository interface {
	// Add fails with ErrDuplicate when the user already upvoted the issue.
	Add(ctx context.Context, issueID, userID primitive.ObjectID, now time.Time) error
	// Remove returns false when there was nothing to remove.
	Remove(ctx context.Context, issueID, userID primitive.ObjectID) (bool, error)
	Voted(ctx context.Context, userID primitive.ObjectID, issueIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

type CommentRepository interface {
	Insert(ctx context.Context, comment *models.IssueComment) error
	ListByIssue(ctx context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueComment, error)
}

type PhotoRepository interface {
	Insert(ctx context.Context, photo *models.IssuePhoto) error
	ListByIssue(ctx context.Context, issueID primitive.ObjectID) ([]models.IssuePhoto, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// ProfilePatch holds the self-editable profile fields. Nil fields are left alone.
type ProfilePatch struct {
	FullName                *string
	Bio                     *string
	Location                *string
	NotificationPreferences *models.NotificationPreferences
}

type ProfileRepository interface {
	Insert(ctx context.Context, p *models.Profile) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	FindByPhone(ctx context.Context, phone string) (*models.Profile, error)
	Update(ctx context.Context, id primitive.ObjectID, patch ProfilePatch, now time.Time) (*models.Profile, error)
	AddPushToken(ctx context.Context, id primitive.ObjectID, token string) error
	RemovePushToken(ctx context.Context, id primitive.ObjectID, token string) error
}
