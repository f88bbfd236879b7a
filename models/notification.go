package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType enum
type NotificationType string

const (
	StatusUpdate      NotificationType = "status_update"
	NewUpvote         NotificationType = "new_upvote"
	NewComment        NotificationType = "new_comment"
	IssueResolved     NotificationType = "issue_resolved"
	AuthorityResponse NotificationType = "authority_response"
)

// Notification is addressed to a single user
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Title     string              `bson:"title" json:"title"`
	Message   string              `bson:"message" json:"message"`
	Type      NotificationType    `bson:"type" json:"type"`
	IsRead    bool                `bson:"is_read" json:"is_read"`
	IssueID   *primitive.ObjectID `bson:"issue_id,omitempty" json:"issue_id,omitempty"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}
