package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zetxtech/websole/internal/auth"
	"github.com/zetxtech/websole/internal/model"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	gate *auth.Gate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(gate *auth.Gate) *AuthHandler {
	return &AuthHandler{gate: gate}
}

// LoginRequest is the login body, as a form or JSON.
type LoginRequest struct {
	Password string `json:"webpass" form:"webpass"`
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	token, err := h.gate.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTooManyAttempts):
			sendError(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many login trials")
		case errors.Is(err, model.ErrUnauthorized):
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Wrong password")
		default:
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in: "+err.Error())
		}
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, int(auth.DefaultTokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Logout handles GET /logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(auth.CookieName); err == nil {
		h.gate.Logout(token)
	}
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterRoutes registers the auth routes.
func (h *AuthHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)
}
