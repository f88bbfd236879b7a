package routes

import (
	"civicreport-be/controllers"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the controllers and the middleware the routes need.
type Handlers struct {
	Auth          *controllers.AuthController
	Issues        *controllers.IssueController
	Users         *controllers.UserController
	Location      *controllers.LocationController
	Notifications *controllers.NotificationController

	RequireAuth  gin.HandlerFunc
	IssueLimiter gin.HandlerFunc
}

// Register mounts every API route on r.
func Register(r *gin.Engine, h Handlers) {
	AuthRoutes(r, h)
	UserRoutes(r, h)
	IssueRoutes(r, h)
	LocationRoutes(r, h)
	NotificationRoutes(r, h)
}
