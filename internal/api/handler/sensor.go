package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"github.com/jmerrifield20/vitalsguard/internal/ingest"
	"github.com/jmerrifield20/vitalsguard/internal/policy"
	"github.com/jmerrifield20/vitalsguard/internal/vitals"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// ingester runs the ingestion pipeline, satisfied by *ingest.Pipeline.
type ingester interface {
	Ingest(ctx context.Context, r vitals.Reading) (*ingest.Result, error)
}

// historyReader reads stored readings.
type historyReader interface {
	History(ctx context.Context, patientID string, limit int) ([]*vitals.Reading, error)
}

// accessEvaluator decides read access, satisfied by *policy.Engine.
type accessEvaluator interface {
	Evaluate(ctx context.Context, username, targetPatientID string) policy.Decision
}

// SensorHandler exposes the upload and history endpoints.
type SensorHandler struct {
	pipeline ingester
	history  historyReader
	access   accessEvaluator
	tokens   *identity.SessionIssuer
	logger   *zap.Logger
}

// NewSensorHandler creates a SensorHandler.
func NewSensorHandler(p ingester, history historyReader, access accessEvaluator, tokens *identity.SessionIssuer, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{pipeline: p, history: history, access: access, tokens: tokens, logger: logger}
}

// Register mounts the sensor routes.
func (h *SensorHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sensor", identity.RequireSession(h.tokens))
	{
		s.POST("/upload", h.Upload)
		s.GET("/history/:patientId", h.History)
	}
}

// Upload handles POST /sensor/upload.
func (h *SensorHandler) Upload(c *gin.Context) {
	var r vitals.Reading
	if err := c.ShouldBindJSON(&r); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ingest.ErrValidation, err))
		return
	}

	res, err := h.pipeline.Ingest(c.Request.Context(), r)
	if err != nil {
		h.logger.Warn("ingest failed", zap.String("patient_id", r.PatientID), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "Secured",
		"readingId":     res.ReadingID,
		"contentHandle": res.ContentHandle,
		"txHash":        res.TxHash,
	})
}

// History handles GET /sensor/history/:patientId. Access is decided by the
// policy engine for the authenticated requester; a break-glass token grants
// access to the one patient it names.
func (h *SensorHandler) History(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	patientID := c.Param("patientId")

	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)})
			return
		}
		limit = n
	}

	if claims.Kind == identity.KindEmergency {
		if claims.Patient != patientID {
			writeError(c, fmt.Errorf("%w: emergency token is scoped to another patient", ErrDenied))
			return
		}
		h.logger.Warn("break-glass history access",
			zap.String("requester", claims.Username),
			zap.String("patient_id", patientID),
			zap.String("reason", claims.Reason),
		)
	} else if d := h.access.Evaluate(c.Request.Context(), claims.Username, patientID); !d.Allowed {
		writeError(c, fmt.Errorf("%w: %s", ErrDenied, d.Reason))
		return
	}

	readings, err := h.history.History(c.Request.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("load history", zap.String("patient_id", patientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if readings == nil {
		readings = []*vitals.Reading{}
	}
	c.JSON(http.StatusOK, readings)
}
