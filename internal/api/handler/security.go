package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"github.com/jmerrifield20/vitalsguard/internal/lockdown"
	"go.uber.org/zap"
)

const defaultEventsLimit = 50

// lockdownController is the administrative surface of *lockdown.Controller.
type lockdownController interface {
	Status() lockdown.Status
	Enable(ctx context.Context, reason, source string) (bool, error)
	Disable(ctx context.Context, source string) (bool, error)
}

// SecurityHandler exposes lockdown administration and the event log.
type SecurityHandler struct {
	lockdown lockdownController
	events   audit.Store
	tokens   *identity.SessionIssuer
	logger   *zap.Logger
}

// NewSecurityHandler creates a SecurityHandler.
func NewSecurityHandler(ctrl lockdownController, events audit.Store, tokens *identity.SessionIssuer, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{lockdown: ctrl, events: events, tokens: tokens, logger: logger}
}

// Register mounts the security and export routes.
func (h *SecurityHandler) Register(rg *gin.RouterGroup) {
	admin := identity.RequireAdmin(h.tokens)

	s := rg.Group("/security")
	{
		s.GET("/status", h.Status)
		s.POST("/lockdown", admin, h.Lockdown)
		s.POST("/unlock", admin, h.Unlock)
		s.GET("/events", admin, h.Events)
	}
	rg.GET("/export/events.csv", admin, h.ExportEvents)
}

// Status handles GET /security/status.
func (h *SecurityHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.lockdown.Status())
}

type lockdownRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Lockdown handles POST /security/lockdown.
func (h *SecurityHandler) Lockdown(c *gin.Context) {
	var req lockdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	admin := identity.ClaimsFromCtx(c).Username

	changed, err := h.lockdown.Enable(c.Request.Context(), req.Reason, c.ClientIP())
	if err != nil {
		// The system is locked down regardless; the event could not be stored.
		h.logger.Error("lockdown event not persisted", zap.String("admin", admin), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lockdown active but event not persisted",
			"changed": changed,
			"status":  h.lockdown.Status(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "status": h.lockdown.Status()})
}

// Unlock handles POST /security/unlock.
func (h *SecurityHandler) Unlock(c *gin.Context) {
	changed, err := h.lockdown.Disable(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.logger.Error("unlock failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lockdown could not be lifted", "status": h.lockdown.Status()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "status": h.lockdown.Status()})
}

// Events handles GET /security/events.
func (h *SecurityHandler) Events(c *gin.Context) {
	limit := defaultEventsLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("load events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []*audit.SecurityEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// ExportEvents handles GET /export/events.csv.
func (h *SecurityHandler) ExportEvents(c *gin.Context) {
	events, err := h.events.All(c.Request.Context())
	if err != nil {
		h.logger.Error("load events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	name := fmt.Sprintf("security_events_%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+name)
	if err := audit.WriteCSV(c.Writer, events); err != nil {
		h.logger.Error("write events csv", zap.Error(err))
	}
}
