package services

import (
	"context"

	"civicreport-be/feed"
	"civicreport-be/models"
	"civicreport-be/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationService struct {
	notifications repositories.NotificationRepository
	watcher       feed.Watcher
}

func NewNotificationService(notifications repositories.NotificationRepository, watcher feed.Watcher) *NotificationService {
	return &NotificationService{notifications: notifications, watcher: watcher}
}

// List returns the user's notifications newest first.
func (s *NotificationService) List(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	return s.notifications.ListByUser(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error) {
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

// Open loads the user's feed and subscribes it to the change feed. The
// subscription lives until ctx is cancelled.
func (s *NotificationService) Open(ctx context.Context, userID primitive.ObjectID) (*feed.Feed, <-chan feed.Event, error) {
	events, err := s.watcher.Watch(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	initial, err := s.notifications.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return feed.New(userID, initial), events, nil
}

// MarkReadInFeed persists the read flag, then mirrors it into f.
func (s *NotificationService) MarkReadInFeed(ctx context.Context, f *feed.Feed, userID, id primitive.ObjectID) error {
	if _, err := s.notifications.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	f.MarkRead(id)
	return nil
}
