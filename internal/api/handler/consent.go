package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"github.com/jmerrifield20/vitalsguard/internal/users"
	"go.uber.org/zap"
)

// consentSvc is satisfied by *consent.Service.
type consentSvc interface {
	Request(ctx context.Context, patientID, doctorID string) (*consent.Grant, error)
	Respond(ctx context.Context, id uuid.UUID, responder string, status consent.Status) (*consent.Grant, error)
	ListForPatient(ctx context.Context, patientID string) ([]*consent.Grant, error)
	Check(ctx context.Context, patientID, doctorID string) (*consent.Grant, error)
}

// ConsentHandler exposes the consent workflow.
type ConsentHandler struct {
	svc    consentSvc
	tokens *identity.SessionIssuer
	logger *zap.Logger
}

// NewConsentHandler creates a ConsentHandler.
func NewConsentHandler(svc consentSvc, tokens *identity.SessionIssuer, logger *zap.Logger) *ConsentHandler {
	return &ConsentHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the consent routes. All require a session.
func (h *ConsentHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/consent", identity.RequireSession(h.tokens))
	{
		g.POST("/request", h.Request)
		g.POST("/respond", h.Respond)
		g.GET("/patient/:patientId", h.ListForPatient)
		g.GET("/check", h.Check)
	}
}

type consentRequest struct {
	PatientID string `json:"patientId" binding:"required"`
}

// Request handles POST /consent/request. The requester must be a clinician.
func (h *ConsentHandler) Request(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	if r, _ := users.ParseRole(claims.Role); !r.IsClinician() {
		writeError(c, fmt.Errorf("%w: only clinicians may request consent", ErrDenied))
		return
	}
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.svc.Request(c.Request.Context(), req.PatientID, claims.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

type respondRequest struct {
	ConsentID string `json:"consentId" binding:"required"`
	Status    string `json:"status"    binding:"required"`
}

// Respond handles POST /consent/respond. Only the patient may respond.
func (h *ConsentHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(req.ConsentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consentId must be a UUID"})
		return
	}
	status := consent.Status(strings.ToUpper(req.Status))

	g, err := h.svc.Respond(c.Request.Context(), id, identity.ClaimsFromCtx(c).Username, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ListForPatient handles GET /consent/patient/:patientId. Patients see their
// own grants; administrators see any.
func (h *ConsentHandler) ListForPatient(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	patientID := c.Param("patientId")
	if claims.Username != patientID && !strings.EqualFold(claims.Role, string(users.RoleAdmin)) {
		writeError(c, fmt.Errorf("%w: not your consent list", ErrDenied))
		return
	}
	grants, err := h.svc.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		writeError(c, err)
		return
	}
	if grants == nil {
		grants = []*consent.Grant{}
	}
	c.JSON(http.StatusOK, grants)
}

// Check handles GET /consent/check?patientId=&doctorId=. doctorId defaults
// to the caller.
func (h *ConsentHandler) Check(c *gin.Context) {
	patientID := c.Query("patientId")
	doctorID := c.DefaultQuery("doctorId", identity.ClaimsFromCtx(c).Username)
	if patientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patientId is required"})
		return
	}
	g, err := h.svc.Check(c.Request.Context(), patientID, doctorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": g.Status,
		"active": g.Active(time.Now()),
		"grant":  g,
	})
}
