package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/ingest"
	"github.com/jmerrifield20/vitalsguard/internal/users"
)

// lockdownRetryAfter is the Retry-After value, in seconds, sent with 503s.
const lockdownRetryAfter = "60"

// ErrDenied is returned when the policy engine refuses access.
var ErrDenied = errors.New("access denied")

// writeError maps a service error to an HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrSuspended), errors.Is(err, users.ErrSuspended):
		c.Header("Retry-After", lockdownRetryAfter)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service suspended", "code": "SYSTEM_LOCKDOWN"})
	case errors.Is(err, ingest.ErrValidation),
		errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, consent.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDenied), errors.Is(err, consent.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrNotFound),
		errors.Is(err, consent.ErrNotFound),
		errors.Is(err, users.ErrAttributeNotHeld):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, consent.ErrDuplicate), errors.Is(err, users.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
