package routes

import (
	"civicreport-be/middlewares"
	"civicreport-be/models"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine, h Handlers) {
	authority := middlewares.RequireRole(models.Authority)

	issue := r.Group("/api/issues", h.RequireAuth)
	{
		issue.POST("", h.IssueLimiter, h.Issues.CreateIssue)
		issue.GET("", authority, h.Issues.TriageList)
		issue.GET("/mine", h.Issues.MyIssues)
		issue.GET("/map", h.Issues.MapPins)
		issue.GET("/analytics", authority, h.Issues.Analytics)
		issue.POST("/bulk", authority, h.Issues.Bulk)
		issue.GET("/:id", h.Issues.GetIssue)
		issue.GET("/:id/updates", h.Issues.Timeline)
		issue.PATCH("/:id/status", authority, h.Issues.UpdateStatus)
		issue.PATCH("/:id/triage", authority, h.Issues.Triage)
		issue.POST("/:id/upvote", h.Issues.ToggleUpvote)
		issue.GET("/:id/comments", h.Issues.ListComments)
		issue.POST("/:id/comments", h.Issues.AddComment)
		issue.POST("/:id/photos", h.Issues.UploadPhoto)
	}
}
