package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"go.uber.org/zap"
)

// DefaultEmergencyTTL bounds break-glass tokens.
const DefaultEmergencyTTL = 15 * time.Minute

// eventRecorder persists security events, satisfied by *audit.Recorder.
type eventRecorder interface {
	Record(ctx context.Context, typ audit.EventType, sev audit.Severity, description, source string) (*audit.SecurityEvent, error)
}

// attributeRevoker is satisfied by *users.UserService.
type attributeRevoker interface {
	RevokeAttribute(ctx context.Context, username, attribute, admin, source string) error
}

// EmergencyHandler exposes break-glass access and attribute revocation.
type EmergencyHandler struct {
	events  eventRecorder
	revoker attributeRevoker
	tokens  *identity.SessionIssuer
	ttl     time.Duration
	logger  *zap.Logger
}

// NewEmergencyHandler creates an EmergencyHandler. ttl defaults to
// DefaultEmergencyTTL.
func NewEmergencyHandler(events eventRecorder, revoker attributeRevoker, tokens *identity.SessionIssuer, ttl time.Duration, logger *zap.Logger) *EmergencyHandler {
	if ttl == 0 {
		ttl = DefaultEmergencyTTL
	}
	return &EmergencyHandler{events: events, revoker: revoker, tokens: tokens, ttl: ttl, logger: logger}
}

// Register mounts the emergency and revocation routes.
func (h *EmergencyHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/emergency/override", identity.RequireSession(h.tokens), h.Override)
	rg.POST("/access/revoke", identity.RequireAdmin(h.tokens), h.Revoke)
}

type overrideRequest struct {
	PatientID string `json:"patientId" binding:"required"`
	Reason    string `json:"reason"`
}

// Override handles POST /emergency/override. The event goes straight to the
// event log rather than the alert stream, so it never triggers a lockdown.
func (h *EmergencyHandler) Override(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emergency reason is mandatory"})
		return
	}
	claims := identity.ClaimsFromCtx(c)
	if claims.Kind != identity.KindSession {
		c.JSON(http.StatusForbidden, gin.H{"error": "a session token is required"})
		return
	}

	desc := fmt.Sprintf("Doc %s accessed Patient %s. Reason: %s", claims.Username, req.PatientID, req.Reason)
	if _, err := h.events.Record(c.Request.Context(), audit.EventEmergencyOverride, audit.SeverityCritical, desc, c.ClientIP()); err != nil {
		// No unlogged break-glass access.
		h.logger.Error("emergency override not recorded", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "override could not be recorded"})
		return
	}

	token, err := h.tokens.IssueEmergency(claims.Username, claims.Role, req.PatientID, req.Reason, h.ttl)
	if err != nil {
		h.logger.Error("issue emergency token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "GRANTED",
		"message":        "Emergency Access Granted. Event Logged.",
		"emergencyToken": token,
		"expiresIn":      int(h.ttl.Seconds()),
	})
}

type revokeRequest struct {
	Username  string `json:"username"  binding:"required"`
	Attribute string `json:"attribute" binding:"required"`
}

// Revoke handles POST /access/revoke.
func (h *EmergencyHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	admin := identity.ClaimsFromCtx(c).Username
	if err := h.revoker.RevokeAttribute(c.Request.Context(), req.Username, req.Attribute, admin, c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": req.Attribute, "username": req.Username})
}
