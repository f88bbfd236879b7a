package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultLocationLabel is shown when the reporter picked no point on the map.
const DefaultLocationLabel = "Auto-detected location"

// Coordinates is a point picked on the map.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PendingLocation is what the report form finds when it opens.
type PendingLocation struct {
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Label       string       `json:"label"`
}

// LocationService hands the map selection over to the report form through a
// per-user Redis hash that expires on its own and is deleted when read.
type LocationService struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocationService(rdb *redis.Client, ttl time.Duration) *LocationService {
	return &LocationService{rdb: rdb, ttl: ttl}
}

func locationKey(userID primitive.ObjectID) string {
	return "location:selected:" + userID.Hex()
}

// Store overwrites the caller's slot with a validated point.
func (s *LocationService) Store(ctx context.Context, userID primitive.ObjectID, c Coordinates) error {
	if !ValidCoordinates(c.Latitude, c.Longitude) {
		return ErrInvalidCoordinates
	}

	key := locationKey(userID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64),
			"lng", strconv.FormatFloat(c.Longitude, 'f', -1, 64),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store location: %w", err)
	}
	return nil
}

// Take reads and clears the caller's slot in one transaction. An empty or
// unreadable slot yields the default label.
func (s *LocationService) Take(ctx context.Context, userID primitive.ObjectID) (*PendingLocation, error) {
	key := locationKey(userID)

	var get *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("take location: %w", err)
	}

	fallback := &PendingLocation{Label: DefaultLocationLabel}
	fields := get.Val()
	lat, errLat := strconv.ParseFloat(fields["lat"], 64)
	lng, errLng := strconv.ParseFloat(fields["lng"], 64)
	if errLat != nil || errLng != nil || !ValidCoordinates(lat, lng) {
		return fallback, nil
	}

	return &PendingLocation{
		Coordinates: &Coordinates{Latitude: lat, Longitude: lng},
		Label:       fmt.Sprintf("Selected: %.4f, %.4f", lat, lng),
	}, nil
}
