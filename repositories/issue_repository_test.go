package repositories

import (
	"context"
	"testing"
	"time"

	"civicreport-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestBuildIssueMatch(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, buildIssueMatch(IssueFilter{}))
	})

	t.Run("ReporterAndCoordinates", func(t *testing.T) {
		reporter := primitive.NewObjectID()
		match := buildIssueMatch(IssueFilter{SubmittedBy: &reporter, WithCoordinates: true})
		assert.Equal(t, reporter, match["submitted_by"])
		assert.NotContains(t, match, "reported_by")
		assert.Contains(t, match, "latitude")
		assert.Contains(t, match, "longitude")
	})
}

func TestBuildIssuePipeline(t *testing.T) {
	withLimit := buildIssuePipeline(IssueFilter{Limit: 19})
	require.Len(t, withLimit, 4)
	assert.Equal(t, "$limit", withLimit[2][0].Key)
	assert.EqualValues(t, 19, withLimit[2][0].Value)

	noLimit := buildIssuePipeline(IssueFilter{})
	require.Len(t, noLimit, 3)
	assert.Equal(t, "$lookup", noLimit[2][0].Key)
}

func TestIssueRowView(t *testing.T) {
	reporter := models.Profile{FullName: "Casey"}

	row := issueRow{Issue: models.Issue{Title: "a"}, Reporter: []models.Profile{reporter}}
	assert.Equal(t, "Casey", row.view().ReporterName)

	row.IsAnonymous = true
	assert.Equal(t, "Anonymous", row.view().ReporterName)

	assert.Equal(t, "Anonymous", issueRow{}.view().ReporterName)
}

func TestTopUpvoted(t *testing.T) {
	issues := []TopIssue{
		{Title: "a", UpvotesCount: 1},
		{Title: "b", UpvotesCount: 5},
		{Title: "c", UpvotesCount: 5},
		{Title: "d", UpvotesCount: 0},
	}

	top := TopUpvoted(issues, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{top[0].Title, top[1].Title, top[2].Title})
	assert.Equal(t, "a", issues[0].Title)

	assert.Len(t, TopUpvoted(issues, 10), 4)
}

func TestMongoRepositories(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "civicreport." + IssuesCollection

	mt.Run("FindByIDNotFound", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err := NewIssueRepository(mt.DB).FindByID(context.Background(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("FindByID", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "title", Value: "Pothole"},
			{Key: "status", Value: "pending"},
		}))
		issue, err := NewIssueRepository(mt.DB).FindByID(context.Background(), id)
		require.NoError(mt, err)
		assert.Equal(mt, "Pothole", issue.Title)
		assert.Equal(mt, models.Pending, issue.Status)
	})

	mt.Run("IncrementReturnsStoredCount", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{
			Key:   "value",
			Value: bson.D{{Key: "upvotes_count", Value: int32(3)}},
		}))
		n, err := NewIssueRepository(mt.DB).IncrementUpvotes(context.Background(), primitive.NewObjectID(), 1)
		require.NoError(mt, err)
		assert.Equal(mt, 3, n)
	})

	mt.Run("DuplicateUpvoteKeepsDriverError", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := NewUpvoteRepository(mt.DB).Add(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), time.Now())
		require.Error(mt, err)
		assert.ErrorIs(mt, err, ErrDuplicate)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
	})

	mt.Run("RemoveReportsDeletion", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}))
		removed, err := NewUpvoteRepository(mt.DB).Remove(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.True(mt, removed)
	})
}
