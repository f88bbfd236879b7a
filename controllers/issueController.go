package controllers

import (
	"context"
	"net/http"
	"time"

	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IssueController struct {
	issues *services.IssueService
	photos *services.PhotoService
	log    *logger.Logger
}

func NewIssueController(issues *services.IssueService, photos *services.PhotoService, log *logger.Logger) *IssueController {
	return &IssueController{issues: issues, photos: photos, log: log}
}

// CreateIssue files a new report for the caller
func (ic *IssueController) CreateIssue(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input struct {
		Title               string   `json:"title" binding:"required,max=200"`
		Description         string   `json:"description" binding:"required,max=2000"`
		Category            string   `json:"category" binding:"required,issue_category"`
		LocationDescription string   `json:"location_description" binding:"max=300"`
		Address             *string  `json:"address,omitempty" binding:"omitempty,max=300"`
		Latitude            *float64 `json:"latitude,omitempty" binding:"omitempty,latitude"`
		Longitude           *float64 `json:"longitude,omitempty" binding:"omitempty,longitude"`
		IsAnonymous         bool     `json:"is_anonymous"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.issues.Create(ctx, actor, services.CreateIssueInput{
		Title:               input.Title,
		Description:         input.Description,
		Category:            models.IssueCategory(input.Category),
		LocationDescription: input.LocationDescription,
		Address:             input.Address,
		Latitude:            input.Latitude,
		Longitude:           input.Longitude,
		IsAnonymous:         input.IsAnonymous,
	})
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// MyIssues lists the caller's reports with their summary
func (ic *IssueController) MyIssues(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	mine, err := ic.issues.ListMine(ctx, actor, c.Query("search"))
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, mine)
}

type triageQuery struct {
	Search string `form:"search"`
	Filter string `form:"filter" binding:"omitempty,issue_filter"`
}

// TriageList is the authority dashboard listing
func (ic *IssueController) TriageList(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var query triageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	list, err := ic.issues.ListForTriage(ctx, actor, query.Search, query.Filter)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// MapPins returns recent issues that carry coordinates
func (ic *IssueController) MapPins(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	pins, err := ic.issues.MapPins(ctx)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, pins)
}

// Analytics returns category, weekly and top-voted breakdowns
func (ic *IssueController) Analytics(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	analytics, err := ic.issues.Analytics(ctx, actor)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// GetIssue returns one issue with the caller's vote state and photos
func (ic *IssueController) GetIssue(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	detail, err := ic.issues.Get(ctx, actor, id)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Timeline lists the issue's status history
func (ic *IssueController) Timeline(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updates, err := ic.issues.Timeline(ctx, actor, id)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

type statusInput struct {
	Status     string `json:"status" binding:"required,issue_status"`
	Message    string `json:"message" binding:"max=1000"`
	IsInternal bool   `json:"is_internal"`
	Reopen     bool   `json:"reopen"`
}

func (in statusInput) change() services.StatusChange {
	return services.StatusChange{
		Status:     models.IssueStatus(in.Status),
		Message:    in.Message,
		IsInternal: in.IsInternal,
		Reopen:     in.Reopen,
	}
}

// UpdateStatus moves an issue through its lifecycle
func (ic *IssueController) UpdateStatus(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input statusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.issues.SetStatus(ctx, actor, id, input.change())
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// Triage sets priority, department and handler
func (ic *IssueController) Triage(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Priority   *string `json:"priority,omitempty" binding:"omitempty,issue_priority"`
		Department *string `json:"assigned_department,omitempty" binding:"omitempty,max=100"`
		AssignedTo *string `json:"assigned_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := services.TriageInput{Department: input.Department}
	if input.Priority != nil {
		p := models.IssuePriority(*input.Priority)
		patch.Priority = &p
	}
	if input.AssignedTo != nil {
		handler, err := primitive.ObjectIDFromHex(*input.AssignedTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assignee ID"})
			return
		}
		patch.AssignedTo = &handler
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.issues.Triage(ctx, actor, id, patch)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// Bulk applies one status change or department assignment to many issues
func (ic *IssueController) Bulk(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input struct {
		IDs        []string `json:"ids" binding:"required,min=1,dive,required"`
		Action     string   `json:"action" binding:"required,oneof=status assign"`
		Status     string   `json:"status" binding:"omitempty,issue_status"`
		Message    string   `json:"message" binding:"max=1000"`
		IsInternal bool     `json:"is_internal"`
		Reopen     bool     `json:"reopen"`
		Department string   `json:"assigned_department" binding:"max=100"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]primitive.ObjectID, 0, len(input.IDs))
	for _, raw := range input.IDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID: " + raw})
			return
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var (
		updated int
		err     error
	)
	switch input.Action {
	case "status":
		change := statusInput{Status: input.Status, Message: input.Message, IsInternal: input.IsInternal, Reopen: input.Reopen}.change()
		updated, err = ic.issues.BulkSetStatus(ctx, actor, ids, change)
	case "assign":
		updated, err = ic.issues.BulkAssign(ctx, actor, ids, input.Department)
	}
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ToggleUpvote adds or removes the caller's vote
func (ic *IssueController) ToggleUpvote(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := ic.issues.ToggleUpvote(ctx, actor, id)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListComments returns the comments visible to the caller
func (ic *IssueController) ListComments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	comments, err := ic.issues.ListComments(ctx, actor, id)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// AddComment posts a comment on an issue
func (ic *IssueController) AddComment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Content         string  `json:"content" binding:"required,max=2000"`
		IsInternal      bool    `json:"is_internal"`
		ParentCommentID *string `json:"parent_comment_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := services.CommentInput{Content: input.Content, IsInternal: input.IsInternal}
	if input.ParentCommentID != nil {
		parent, err := primitive.ObjectIDFromHex(*input.ParentCommentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parent comment ID"})
			return
		}
		in.ParentCommentID = &parent
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	comment, err := ic.issues.AddComment(ctx, actor, id, in)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// UploadPhoto stores a multipart "photo" file against the issue
func (ic *IssueController) UploadPhoto(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxPhotoSize+1<<20)
	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	defer file.Close()

	upload := services.PhotoUpload{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	if caption := c.PostForm("caption"); caption != "" {
		upload.Caption = &caption
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	photo, err := ic.photos.Upload(ctx, actor, id, upload)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	c.JSON(http.StatusCreated, photo)
}
