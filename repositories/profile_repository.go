package repositories

import (
	"context"
	"time"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoProfileRepository struct {
	profiles *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *MongoProfileRepository {
	return &MongoProfileRepository{profiles: db.Collection(ProfilesCollection)}
}

func (r *MongoProfileRepository) Insert(ctx context.Context, p *models.Profile) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.profiles.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoProfileRepository) findOne(ctx context.Context, filter bson.M) (*models.Profile, error) {
	var p models.Profile
	if err := r.profiles.FindOne(ctx, filter).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *MongoProfileRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Profile, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoProfileRepository) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoProfileRepository) FindByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *MongoProfileRepository) Update(ctx context.Context, id primitive.ObjectID, patch ProfilePatch, now time.Time) (*models.Profile, error) {
	set := bson.M{"updated_at": now}
	if patch.FullName != nil {
		set["full_name"] = *patch.FullName
	}
	if patch.Bio != nil {
		set["bio"] = *patch.Bio
	}
	if patch.Location != nil {
		set["location"] = *patch.Location
	}
	if patch.NotificationPreferences != nil {
		set["notification_preferences"] = *patch.NotificationPreferences
	}

	var p models.Profile
	err := r.profiles.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *MongoProfileRepository) AddPushToken(ctx context.Context, id primitive.ObjectID, token string) error {
	res, err := r.profiles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"push_tokens": token}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoProfileRepository) RemovePushToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := r.profiles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"push_tokens": token}})
	return err
}
