package routes

import (
	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine, h Handlers) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/otp", h.Auth.RequestOTP)
		auth.POST("/otp/verify", h.Auth.VerifyOTP)
		auth.GET("/session", h.RequireAuth, h.Auth.Session)
		auth.POST("/logout", h.RequireAuth, h.Auth.Logout)
	}
}
