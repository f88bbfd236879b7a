package controllers

import (
	"context"
	"net/http"

	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
)

// UserController serves the caller's own profile and push devices.
type UserController struct {
	profiles *services.ProfileService
	push     *services.PushService
	log      *logger.Logger
}

func NewUserController(profiles *services.ProfileService, push *services.PushService, log *logger.Logger) *UserController {
	return &UserController{profiles: profiles, push: push, log: log}
}

func (uc *UserController) GetProfile(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, err := uc.profiles.Get(ctx, actor.ID)
	if err != nil {
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (uc *UserController) UpdateProfile(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input struct {
		FullName                *string                         `json:"full_name,omitempty" binding:"omitempty,max=100"`
		Bio                     *string                         `json:"bio,omitempty" binding:"omitempty,max=500"`
		Location                *string                         `json:"location,omitempty" binding:"omitempty,max=200"`
		NotificationPreferences *models.NotificationPreferences `json:"notification_preferences,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, err := uc.profiles.Update(ctx, actor.ID, services.ProfileUpdate{
		FullName:                input.FullName,
		Bio:                     input.Bio,
		Location:                input.Location,
		NotificationPreferences: input.NotificationPreferences,
	})
	if err != nil {
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type pushTokenInput struct {
	Token string `json:"token" binding:"required"`
}

// RegisterPushToken adds a device to the caller's push targets
func (uc *UserController) RegisterPushToken(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input pushTokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := uc.push.Register(ctx, actor.ID, input.Token); err != nil {
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device registered"})
}

// UnregisterPushToken removes a device
func (uc *UserController) UnregisterPushToken(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input pushTokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := uc.push.Unregister(ctx, actor.ID, input.Token); err != nil {
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device removed"})
}
