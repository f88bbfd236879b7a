package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// UserRole enum
type UserRole string

const (
	Citizen   UserRole = "citizen"
	Authority UserRole = "authority"
)

// NotificationPreferences controls which channels a user receives notifications on
type NotificationPreferences struct {
	PushEnabled  bool `bson:"push_enabled" json:"push_enabled"`
	EmailEnabled bool `bson:"email_enabled" json:"email_enabled"`
}

// Profile is the application-side record of an authenticated identity
type Profile struct {
	ID                      primitive.ObjectID      `bson:"_id,omitempty" json:"id"`
	Email                   string                  `bson:"email,omitempty" json:"email,omitempty"`
	Phone                   string                  `bson:"phone,omitempty" json:"phone,omitempty"`
	FullName                string                  `bson:"full_name" json:"full_name"`
	Password                string                  `bson:"password,omitempty" json:"-"`
	Role                    UserRole                `bson:"role" json:"role"`
	IsVerified              bool                    `bson:"is_verified" json:"is_verified"`
	Department              *string                 `bson:"department,omitempty" json:"department,omitempty"`
	AvatarURL               *string                 `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Bio                     *string                 `bson:"bio,omitempty" json:"bio,omitempty"`
	Location                *string                 `bson:"location,omitempty" json:"location,omitempty"`
	NotificationPreferences NotificationPreferences `bson:"notification_preferences" json:"notification_preferences"`
	PushTokens              []string                `bson:"push_tokens,omitempty" json:"-"`
	CreatedAt               time.Time               `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time               `bson:"updated_at" json:"updated_at"`
}

// DisplayName falls back to the email, then phone, when no full name is set.
func (p *Profile) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Email != "":
		return p.Email
	case p.Phone != "":
		return p.Phone
	}
	return "Anonymous"
}

func (p *Profile) IsAuthority() bool { return p.Role == Authority }

func (p *Profile) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Password = string(hashed)
	return nil
}

func (p *Profile) ComparePassword(candidate string) bool {
	if p.Password == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(candidate))
	return err == nil
}
