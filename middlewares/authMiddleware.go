package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/services"
	authUtils "civicreport-be/utils"

	"github.com/gin-gonic/gin"
)

// AuthCookie carries the session token for browser clients.
const AuthCookie = "auth_token"

const (
	userIDKey  = "user_id"
	actorKey   = "actor"
	claimsKey  = "claims"
	profileKey = "profile"
)

// Authenticator resolves a token to the caller's claims and current profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*authUtils.Claims, *models.Profile, error)
}

func bearerToken(c *gin.Context) string {
	if header := c.Request.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(AuthCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware requires a valid, unrevoked session. The profile is loaded on
// every request so role changes apply immediately.
func AuthMiddleware(auth Authenticator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		claims, profile, err := auth.Authenticate(ctx, tokenString)
		switch {
		case errors.Is(err, services.ErrSessionRevoked):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has been signed out"})
			return
		case errors.Is(err, services.ErrInvalidToken):
			log.Service().WithError(err).Debug("token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			return
		case err != nil:
			log.Service().WithError(err).Error("authenticate request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
			return
		}

		c.Set(userIDKey, profile.ID.Hex())
		c.Set(claimsKey, claims)
		c.Set(profileKey, profile)
		c.Set(actorKey, services.Actor{ID: profile.ID, Role: profile.Role})
		c.Next()
	}
}

// RequireRole rejects callers whose current role is not role.
func RequireRole(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		if actor.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

// CurrentActor returns the caller set by AuthMiddleware.
func CurrentActor(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}

// CurrentClaims returns the token claims set by AuthMiddleware.
func CurrentClaims(c *gin.Context) (*authUtils.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*authUtils.Claims)
	return claims, ok
}

// CurrentProfile returns the profile loaded by AuthMiddleware.
func CurrentProfile(c *gin.Context) (*models.Profile, bool) {
	v, ok := c.Get(profileKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Profile)
	return p, ok
}
