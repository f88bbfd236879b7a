package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicreport-be/models"
	"civicreport-be/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProfileService struct {
	profiles repositories.ProfileRepository
	now      func() time.Time
}

func NewProfileService(profiles repositories.ProfileRepository) *ProfileService {
	return &ProfileService{profiles: profiles, now: time.Now}
}

func (s *ProfileService) Get(ctx context.Context, id primitive.ObjectID) (*models.Profile, error) {
	return s.profiles.FindByID(ctx, id)
}

// ProfileUpdate carries the fields a user may edit on their own profile.
type ProfileUpdate struct {
	FullName                *string
	Bio                     *string
	Location                *string
	NotificationPreferences *models.NotificationPreferences
}

func (s *ProfileService) Update(ctx context.Context, id primitive.ObjectID, in ProfileUpdate) (*models.Profile, error) {
	patch := repositories.ProfilePatch{
		FullName:                trimmed(in.FullName),
		Bio:                     trimmed(in.Bio),
		Location:                trimmed(in.Location),
		NotificationPreferences: in.NotificationPreferences,
	}
	if patch.FullName != nil && (*patch.FullName == "" || len(*patch.FullName) > 100) {
		return nil, fmt.Errorf("%w: full name must be 1-100 characters", ErrInvalidInput)
	}
	if patch.Bio != nil && len(*patch.Bio) > 500 {
		return nil, fmt.Errorf("%w: bio is too long", ErrInvalidInput)
	}
	if patch.Location != nil && strings.ContainsAny(*patch.Location, "\n\r") {
		return nil, fmt.Errorf("%w: location must be a single line", ErrInvalidInput)
	}
	return s.profiles.Update(ctx, id, patch, s.now())
}
