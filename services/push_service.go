package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxPushTokenLength = 4096

// PushMessage is what the push delivery pipeline consumes, one per notification.
type PushMessage struct {
	NotificationID string                  `json:"notification_id"`
	UserID         string                  `json:"user_id"`
	Tokens         []string                `json:"tokens"`
	Title          string                  `json:"title"`
	Body           string                  `json:"body"`
	Type           models.NotificationType `json:"type"`
	IssueID        string                  `json:"issue_id,omitempty"`
}

type PushPublisher interface {
	Publish(ctx context.Context, msgs ...PushMessage) error
}

// KafkaWriter is the part of *kafka.Writer the publishers use.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPushPublisher writes push messages keyed by user so one user's
// notifications stay ordered within a partition.
type KafkaPushPublisher struct {
	writer KafkaWriter
	topic  string
}

func NewKafkaPushPublisher(writer KafkaWriter, topic string) *KafkaPushPublisher {
	return &KafkaPushPublisher{writer: writer, topic: topic}
}

func (p *KafkaPushPublisher) Publish(ctx context.Context, msgs ...PushMessage) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal push message: %w", err)
		}
		out = append(out, kafka.Message{Topic: p.topic, Key: []byte(m.UserID), Value: value})
	}
	return p.writer.WriteMessages(ctx, out...)
}

// PushService manages device tokens and forwards notifications to the pipeline.
type PushService struct {
	profiles  repositories.ProfileRepository
	publisher PushPublisher
	log       *logger.Logger
	published *prometheus.CounterVec
}

func NewPushService(profiles repositories.ProfileRepository, publisher PushPublisher, log *logger.Logger) *PushService {
	return &PushService{profiles: profiles, publisher: publisher, log: log}
}

// CountPublished makes Deliver count published messages by notification type.
func (s *PushService) CountPublished(c *prometheus.CounterVec) *PushService {
	s.published = c
	return s
}

func validToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxPushTokenLength {
		return "", fmt.Errorf("%w: invalid device token", ErrInvalidInput)
	}
	return token, nil
}

func (s *PushService) Register(ctx context.Context, userID primitive.ObjectID, token string) error {
	token, err := validToken(token)
	if err != nil {
		return err
	}
	return s.profiles.AddPushToken(ctx, userID, token)
}

func (s *PushService) Unregister(ctx context.Context, userID primitive.ObjectID, token string) error {
	token, err := validToken(token)
	if err != nil {
		return err
	}
	return s.profiles.RemovePushToken(ctx, userID, token)
}

// Deliver publishes notifications for recipients that enabled push and registered
// a device. Failures are logged and dropped; the stored notification stands.
func (s *PushService) Deliver(ctx context.Context, notifications []models.Notification) {
	if s.publisher == nil {
		return
	}

	profiles := make(map[primitive.ObjectID]*models.Profile)
	var msgs []PushMessage
	for _, n := range notifications {
		p, ok := profiles[n.UserID]
		if !ok {
			var err error
			if p, err = s.profiles.FindByID(ctx, n.UserID); err != nil {
				s.log.WithUserID(n.UserID.Hex()).WithError(err).Warn("push recipient lookup failed")
				p = nil
			}
			profiles[n.UserID] = p
		}
		if p == nil || !p.NotificationPreferences.PushEnabled || len(p.PushTokens) == 0 {
			continue
		}

		msg := PushMessage{
			NotificationID: n.ID.Hex(),
			UserID:         n.UserID.Hex(),
			Tokens:         p.PushTokens,
			Title:          n.Title,
			Body:           n.Message,
			Type:           n.Type,
		}
		if n.IssueID != nil {
			msg.IssueID = n.IssueID.Hex()
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	if err := s.publisher.Publish(ctx, msgs...); err != nil {
		s.log.Service().WithError(err).WithField("count", len(msgs)).Error("push publish failed")
		return
	}
	if s.published != nil {
		for _, m := range msgs {
			s.published.WithLabelValues(string(m.Type)).Inc()
		}
	}
}
