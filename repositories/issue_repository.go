package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoIssueRepository struct {
	issues  *mongo.Collection
	upvotes *mongo.Collection
}

func NewIssueRepository(db *mongo.Database) *MongoIssueRepository {
	return &MongoIssueRepository{
		issues:  db.Collection(IssuesCollection),
		upvotes: db.Collection(UpvotesCollection),
	}
}

func (r *MongoIssueRepository) Insert(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	_, err := r.issues.InsertOne(ctx, issue)
	return err
}

func (r *MongoIssueRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue); err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}

// issueRow is an issue with its reporter profile joined in.
type issueRow struct {
	models.Issue `bson:",inline"`
	Reporter     []models.Profile `bson:"reporter"`
}

func (row issueRow) view() models.IssueView {
	v := models.IssueView{Issue: row.Issue, ReporterName: "Anonymous"}
	if !row.IsAnonymous && len(row.Reporter) > 0 {
		v.ReporterName = row.Reporter[0].DisplayName()
	}
	return v
}

func buildIssueMatch(filter IssueFilter) bson.M {
	match := bson.M{}
	if filter.SubmittedBy != nil {
		match["submitted_by"] = *filter.SubmittedBy
	}
	if filter.WithCoordinates {
		match["latitude"] = bson.M{"$exists": true, "$ne": nil}
		match["longitude"] = bson.M{"$exists": true, "$ne": nil}
	}
	return match
}

func buildIssuePipeline(filter IssueFilter) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildIssueMatch(filter)}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
	}
	if filter.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: filter.Limit}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.M{
		"from":         ProfilesCollection,
		"localField":   "reported_by",
		"foreignField": "_id",
		"as":           "reporter",
	}}})
	return pipeline
}

// List returns issues newest first with reporter display names resolved.
func (r *MongoIssueRepository) List(ctx context.Context, filter IssueFilter) ([]models.IssueView, error) {
	cursor, err := r.issues.Aggregate(ctx, buildIssuePipeline(filter))
	if err != nil {
		return nil, fmt.Errorf("aggregate issues: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []issueRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}

	views := make([]models.IssueView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

func (r *MongoIssueRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status models.IssueStatus, now time.Time) error {
	set := bson.M{"status": status, "updated_at": now}
	update := bson.M{"$set": set}
	if status == models.Resolved {
		set["resolved_at"] = now
	} else {
		update["$unset"] = bson.M{"resolved_at": ""}
	}

	res, err := r.issues.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoIssueRepository) Triage(ctx context.Context, ids []primitive.ObjectID, patch TriagePatch, now time.Time) (int64, error) {
	set := bson.M{"updated_at": now}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.AssignedDepartment != nil {
		set["assigned_department"] = *patch.AssignedDepartment
	}
	if patch.AssignedTo != nil {
		set["assigned_to"] = *patch.AssignedTo
	}

	res, err := r.issues.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (r *MongoIssueRepository) increment(ctx context.Context, id primitive.ObjectID, field string, delta int) (int, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{field: 1})

	var out bson.M
	err := r.issues.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}}, opts).Decode(&out)
	if err != nil {
		return 0, notFound(err)
	}

	switch v := out[field].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("unexpected %s type %T", field, out[field])
}

// IncrementUpvotes applies delta with $inc and returns the stored count afterwards.
func (r *MongoIssueRepository) IncrementUpvotes(ctx context.Context, id primitive.ObjectID, delta int) (int, error) {
	return r.increment(ctx, id, "upvotes_count", delta)
}

func (r *MongoIssueRepository) IncrementComments(ctx context.Context, id primitive.ObjectID, delta int) (int, error) {
	return r.increment(ctx, id, "comments_count", delta)
}

// Analytics returns counts by category, issues created per day over the last week
// and the five most upvoted among the 50 newest issues.
func (r *MongoIssueRepository) Analytics(ctx context.Context, now time.Time) (*IssueAnalytics, error) {
	out := &IssueAnalytics{}

	categoryPipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$project", Value: bson.M{"name": "$_id", "value": "$count", "_id": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "value", Value: -1}, {Key: "name", Value: 1}}}},
	}
	categoryCursor, err := r.issues.Aggregate(ctx, categoryPipeline)
	if err != nil {
		return nil, fmt.Errorf("category analytics: %w", err)
	}
	defer categoryCursor.Close(ctx)
	if err := categoryCursor.All(ctx, &out.IssuesByCategory); err != nil {
		return nil, fmt.Errorf("decode category analytics: %w", err)
	}

	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())

		count, err := r.issues.CountDocuments(ctx, bson.M{
			"created_at": bson.M{"$gte": day, "$lt": day.AddDate(0, 0, 1)},
		})
		if err != nil {
			return nil, fmt.Errorf("daily count: %w", err)
		}
		out.Last7Days = append(out.Last7Days, DayCount{Date: day.Format("2006-01-02"), Count: count})
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(50).
		SetProjection(bson.M{"title": 1, "category": 1, "upvotes_count": 1})
	cursor, err := r.issues.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("recent issues: %w", err)
	}
	defer cursor.Close(ctx)

	var recent []TopIssue
	if err := cursor.All(ctx, &recent); err != nil {
		return nil, fmt.Errorf("decode recent issues: %w", err)
	}
	out.TopUpvoted = TopUpvoted(recent, 5)

	if out.TotalIssues, err = r.issues.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	if out.TotalUpvotes, err = r.upvotes.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("count upvotes: %w", err)
	}
	out.OpenIssues, err = r.issues.CountDocuments(ctx, bson.M{
		"status": bson.M{"$in": []models.IssueStatus{models.Pending, models.InProgress}},
	})
	if err != nil {
		return nil, fmt.Errorf("count open issues: %w", err)
	}

	return out, nil
}

// TopUpvoted orders issues by upvotes, keeping the input order among ties, and
// returns at most n of them.
func TopUpvoted(issues []TopIssue, n int) []TopIssue {
	sorted := append([]TopIssue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpvotesCount > sorted[j].UpvotesCount
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
