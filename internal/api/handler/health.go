package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/health"
)

// readiness is satisfied by *health.Checker.
type readiness interface {
	Ready() bool
	Snapshot() []health.DependencyStatus
}

// RegisterHealth mounts /healthz and /readyz on r. checker may be nil.
func RegisterHealth(r gin.IRoutes, checker readiness, lockdown lockdownController) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "lockdown": lockdown.Status().Active})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"ready": true})
			return
		}
		status := http.StatusOK
		if !checker.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": status == http.StatusOK, "dependencies": checker.Snapshot()})
	})
}
