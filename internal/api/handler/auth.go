package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"github.com/jmerrifield20/vitalsguard/internal/users"
	"go.uber.org/zap"
)

// userSvc is the interface expected by AuthHandler, satisfied by *users.UserService.
type userSvc interface {
	Register(ctx context.Context, username, password, role, department string, attrs []string) (*users.User, error)
	Login(ctx context.Context, username, password, source string) (*users.User, error)
}

// AuthHandler handles login and account creation.
type AuthHandler struct {
	users  userSvc
	tokens *identity.SessionIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc userSvc, tokens *identity.SessionIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: svc, tokens: tokens, logger: logger}
}

// Register mounts the auth routes. Account creation is admin-only.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/login", h.Login)
		a.POST("/register", identity.RequireAdmin(h.tokens), h.CreateUser)
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := h.tokens.Issue(u.Username, string(u.Role))
	if err != nil {
		h.logger.Error("issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": u.Username,
		"role":     u.Role,
	})
}

type createUserRequest struct {
	Username   string   `json:"username"   binding:"required"`
	Password   string   `json:"password"   binding:"required"`
	Role       string   `json:"role"       binding:"required"`
	Department string   `json:"department"`
	Attributes []string `json:"attributes"`
}

// CreateUser handles POST /auth/register.
func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Role, req.Department, req.Attributes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}
