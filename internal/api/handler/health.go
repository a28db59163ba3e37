package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/SupplyChainLedger/internal/integrity"
)

// auditResults is satisfied by *integrity.Auditor.
type auditResults interface {
	Last() (integrity.Result, bool)
}

// HealthHandler serves GET /healthz. The process is degraded (503) when the
// most recent integrity check found a broken chain.
func HealthHandler(audits auditResults) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := audits.Last()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "integrity": "pending"})
			return
		}
		if !res.Report.Valid {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "integrity": res})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "integrity": res})
	}
}
