// Package services implements the application operations on top of the repositories.
package services

//go:generate mockgen -destination=../mocks/services.go -package=mocks civicreport-be/services PushPublisher,OTPSender,ObjectUploader

import (
	"errors"
	"strings"

	"civicreport-be/models"
	"civicreport-be/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound           = repositories.ErrNotFound
	ErrConflict           = repositories.ErrDuplicate
	ErrForbidden          = errors.New("not allowed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   primitive.ObjectID
	Role models.UserRole
}

func (a Actor) IsAuthority() bool { return a.Role == models.Authority }

// ValidCoordinates checks latitude in [-90,90] and longitude in [-180,180].
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// uniqueIDs drops duplicates while keeping the first occurrence order.
func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func parseObjectID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidInput
	}
	return id, nil
}
