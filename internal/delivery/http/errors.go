package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
)

func isValidationErr(err error) bool {
	return errors.Is(err, domain.ErrInvalidFileName) ||
		errors.Is(err, domain.ErrInvalidFileSize) ||
		errors.Is(err, domain.ErrInvalidFileType) ||
		errors.Is(err, domain.ErrInvalidCallbackURL) ||
		errors.Is(err, domain.ErrInvalidListFilter)
}

// writeError maps a usecase error onto a status code and the {"error": ...} body.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case isValidationErr(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrJobConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrChannelUnavailable):
		logger.Warn(op+" failed: dependency unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
	_ = c.Error(err)
}
