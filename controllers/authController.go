package controllers

import (
	"context"
	"net/http"
	"time"

	"civicreport-be/logger"
	"civicreport-be/middlewares"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 10 * time.Second

// CookieSettings controls the auth_token cookie.
type CookieSettings struct {
	Domain     string
	Production bool
}

type AuthController struct {
	auth   *services.AuthService
	cookie CookieSettings
	log    *logger.Logger
}

func NewAuthController(auth *services.AuthService, cookie CookieSettings, log *logger.Logger) *AuthController {
	return &AuthController{auth: auth, cookie: cookie, log: log}
}

func actorOrAbort(c *gin.Context) (services.Actor, bool) {
	actor, ok := middlewares.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return actor, ok
}

func (ac *AuthController) setCookie(c *gin.Context, session *services.Session) {
	domain := ac.cookie.Domain
	// Cross-origin cookies in production must not pin a domain.
	if ac.cookie.Production {
		domain = ""
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middlewares.AuthCookie,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		Path:     "/",
		Domain:   domain,
		Secure:   ac.cookie.Production,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

// Register creates a citizen account
func (ac *AuthController) Register(c *gin.Context) {
	var input struct {
		FullName string `json:"full_name" binding:"required,max=100"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	profile, err := ac.auth.Register(ctx, services.RegisterInput{
		FullName: input.FullName,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// Login signs in with email or phone plus password
func (ac *AuthController) Login(c *gin.Context) {
	var input struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := ac.auth.SignInWithPassword(ctx, input.Identifier, input.Password)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	ac.setCookie(c, session)
	c.JSON(http.StatusOK, session)
}

// RequestOTP sends a one-time code to a phone
func (ac *AuthController) RequestOTP(c *gin.Context) {
	var input struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := ac.auth.SignInWithOTP(ctx, input.Phone); err != nil {
		respondError(c, ac.log, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Verification code sent"})
}

// VerifyOTP exchanges a code for a session
func (ac *AuthController) VerifyOTP(c *gin.Context) {
	var input struct {
		Phone string `json:"phone" binding:"required"`
		Code  string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := ac.auth.VerifyOTP(ctx, input.Phone, input.Code)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	ac.setCookie(c, session)
	c.JSON(http.StatusOK, session)
}

// Session returns the authenticated user's profile
func (ac *AuthController) Session(c *gin.Context) {
	profile, ok := middlewares.CurrentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	claims, _ := middlewares.CurrentClaims(c)

	resp := gin.H{"profile": profile}
	if claims != nil {
		resp["expires_at"] = time.Unix(claims.ExpiresAt, 0)
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the current token and clears the cookie
func (ac *AuthController) Logout(c *gin.Context) {
	claims, ok := middlewares.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := ac.auth.SignOut(ctx, claims); err != nil {
		respondError(c, ac.log, err)
		return
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middlewares.AuthCookie, "", -1, "/", ac.cookie.Domain, ac.cookie.Production, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
