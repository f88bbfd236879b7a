package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory enum
type IssueCategory string

const (
	RoadsTraffic            IssueCategory = "roads-traffic"
	WaterUtilities          IssueCategory = "water-utilities"
	SanitationWaste         IssueCategory = "sanitation-waste"
	StreetLighting          IssueCategory = "street-lighting"
	ParksRecreation         IssueCategory = "parks-recreation"
	PublicSafety            IssueCategory = "public-safety"
	BuildingsInfrastructure IssueCategory = "buildings-infrastructure"
	OtherCategory           IssueCategory = "other"
)

var validCategories = map[IssueCategory]bool{
	RoadsTraffic: true, WaterUtilities: true, SanitationWaste: true, StreetLighting: true,
	ParksRecreation: true, PublicSafety: true, BuildingsInfrastructure: true, OtherCategory: true,
}

func (c IssueCategory) Valid() bool { return validCategories[c] }

// Categories lists every category in display order.
func Categories() []IssueCategory {
	return []IssueCategory{
		RoadsTraffic, WaterUtilities, SanitationWaste, StreetLighting,
		ParksRecreation, PublicSafety, BuildingsInfrastructure, OtherCategory,
	}
}

// IssueStatus enum
type IssueStatus string

const (
	Pending    IssueStatus = "pending"
	InProgress IssueStatus = "in-progress"
	Resolved   IssueStatus = "resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []IssueStatus{Pending, InProgress, Resolved}

func (s IssueStatus) Valid() bool {
	switch s {
	case Pending, InProgress, Resolved:
		return true
	}
	return false
}

// IssuePriority enum
type IssuePriority string

const (
	Low    IssuePriority = "low"
	Medium IssuePriority = "medium"
	High   IssuePriority = "high"
	Urgent IssuePriority = "urgent"
)

func (p IssuePriority) Valid() bool {
	switch p {
	case Low, Medium, High, Urgent:
		return true
	}
	return false
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID                  primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ReportedBy          *primitive.ObjectID `bson:"reported_by,omitempty" json:"reported_by,omitempty"`
	SubmittedBy         primitive.ObjectID  `bson:"submitted_by" json:"-"`
	Title               string              `bson:"title" json:"title"`
	Description         string              `bson:"description" json:"description"`
	Category            IssueCategory       `bson:"category" json:"category"`
	LocationDescription string              `bson:"location_description" json:"location_description"`
	Address             *string             `bson:"address,omitempty" json:"address,omitempty"`
	Latitude            *float64            `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude           *float64            `bson:"longitude,omitempty" json:"longitude,omitempty"`
	IsAnonymous         bool                `bson:"is_anonymous" json:"is_anonymous"`
	Status              IssueStatus         `bson:"status" json:"status"`
	Priority            *IssuePriority      `bson:"priority,omitempty" json:"priority,omitempty"`
	AssignedDepartment  *string             `bson:"assigned_department,omitempty" json:"assigned_department,omitempty"`
	AssignedTo          *primitive.ObjectID `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	UpvotesCount        int                 `bson:"upvotes_count" json:"upvotes_count"`
	CommentsCount       int                 `bson:"comments_count" json:"comments_count"`
	ResolvedAt          *time.Time          `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	CreatedAt           time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `bson:"updated_at" json:"updated_at"`
}

// HasReporter reports whether notifications can be addressed to the reporter.
func (i *Issue) HasReporter() bool {
	return i.ReportedBy != nil && !i.ReportedBy.IsZero()
}

// IsSubmittedBy reports whether id filed the issue. It holds for anonymous
// reports too; the submitter is never exposed or notified.
func (i *Issue) IsSubmittedBy(id primitive.ObjectID) bool {
	if id.IsZero() {
		return false
	}
	return i.SubmittedBy == id || (i.HasReporter() && *i.ReportedBy == id)
}

// IssueView is an Issue joined with its reporter's display name, as listed on dashboards.
type IssueView struct {
	Issue        `bson:",inline"`
	ReporterName string `bson:"reporter_name" json:"reporter_name"`
	UserHasVoted bool   `bson:"-" json:"user_has_voted"`
}

// Department returns the assigned department or "Unassigned".
func (v IssueView) Department() string {
	if v.AssignedDepartment == nil || *v.AssignedDepartment == "" {
		return "Unassigned"
	}
	return *v.AssignedDepartment
}

// IssueUpdate is an append-only timeline entry for an issue
type IssueUpdate struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	IssueID    primitive.ObjectID  `bson:"issue_id" json:"issue_id"`
	Message    string              `bson:"message" json:"message"`
	Status     IssueStatus         `bson:"status" json:"status"`
	UpdatedBy  *primitive.ObjectID `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	IsInternal bool                `bson:"is_internal" json:"is_internal"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
}

// IssueComment is a discussion entry on an issue
type IssueComment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	IssueID         primitive.ObjectID  `bson:"issue_id" json:"issue_id"`
	UserID          primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Content         string              `bson:"content" json:"content"`
	IsInternal      bool                `bson:"is_internal" json:"is_internal"`
	ParentCommentID *primitive.ObjectID `bson:"parent_comment_id,omitempty" json:"parent_comment_id,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
}

// IssuePhoto references an uploaded image of an issue
type IssuePhoto struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IssueID    primitive.ObjectID `bson:"issue_id" json:"issue_id"`
	PhotoURL   string             `bson:"photo_url" json:"photo_url"`
	ObjectKey  string             `bson:"object_key" json:"-"`
	Caption    *string            `bson:"caption,omitempty" json:"caption,omitempty"`
	IsPrimary  bool               `bson:"is_primary" json:"is_primary"`
	UploadedBy primitive.ObjectID `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
