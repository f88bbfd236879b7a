package controllers

import (
	"context"
	"net/http"

	"civicreport-be/logger"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
)

type LocationController struct {
	location *services.LocationService
	log      *logger.Logger
}

func NewLocationController(location *services.LocationService, log *logger.Logger) *LocationController {
	return &LocationController{location: location, log: log}
}

// Select remembers the point the caller picked on the map
func (lc *LocationController) Select(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var input struct {
		Latitude  *float64 `json:"latitude" binding:"required,latitude"`
		Longitude *float64 `json:"longitude" binding:"required,longitude"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	point := services.Coordinates{Latitude: *input.Latitude, Longitude: *input.Longitude}
	if err := lc.location.Store(ctx, actor.ID, point); err != nil {
		respondError(c, lc.log, err)
		return
	}
	c.JSON(http.StatusOK, point)
}

// Pending reads and clears the caller's map selection
func (lc *LocationController) Pending(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	pending, err := lc.location.Take(ctx, actor.ID)
	if err != nil {
		respondError(c, lc.log, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}
