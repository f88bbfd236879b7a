package routes

import (
	"github.com/gin-gonic/gin"
)

func UserRoutes(r *gin.Engine, h Handlers) {
	profile := r.Group("/api/profile", h.RequireAuth)
	{
		profile.GET("", h.Users.GetProfile)
		profile.PATCH("", h.Users.UpdateProfile)
	}

	push := r.Group("/api/push", h.RequireAuth)
	{
		push.POST("/register", h.Users.RegisterPushToken)
		push.DELETE("/register", h.Users.UnregisterPushToken)
	}
}

func LocationRoutes(r *gin.Engine, h Handlers) {
	location := r.Group("/api/location", h.RequireAuth)
	{
		location.POST("", h.Location.Select)
		location.GET("/pending", h.Location.Pending)
	}
}

func NotificationRoutes(r *gin.Engine, h Handlers) {
	notifications := r.Group("/api/notifications", h.RequireAuth)
	{
		notifications.GET("", h.Notifications.List)
		notifications.PATCH("/:id/read", h.Notifications.MarkRead)
		notifications.POST("/read-all", h.Notifications.MarkAllRead)
		notifications.GET("/ws", h.Notifications.Feed)
	}
}
