package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/tracking"
)

// writeError maps domain errors to HTTP responses. Storage and unknown errors
// are logged; their details never reach the client.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var valErr *ledger.ValidationError
	var storageErr *ledger.StorageError

	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error(), "field": valErr.Field})
	case errors.Is(err, tracking.ErrRoleNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &storageErr):
		logger.Error("ledger storage failure", zap.String("op", storageErr.Op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger storage failure"})
	default:
		logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
