package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/middleware"
)

// respondError maps service errors to HTTP statuses. Unexpected errors are
// logged and replaced by fallbackMsg so storage details never reach clients.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallbackMsg string) {
	var dupPeriod *apperrors.DuplicatePeriodError
	switch {
	case errors.As(err, &dupPeriod):
		logger.Warn("Closure period already sealed", slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{
			"error":       err.Error(),
			"closureType": dupPeriod.ClosureType,
			"periodStart": dupPeriod.Start,
			"periodEnd":   dupPeriod.End,
		})
	case errors.Is(err, apperrors.ErrDuplicatePeriod), errors.Is(err, apperrors.ErrDuplicate):
		logger.Warn("Duplicate resource", slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn("Resource not found", slog.String("error", err.Error()))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Validation error", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error(fallbackMsg, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     fallbackMsg,
			"requestID": middleware.GetRequestIDFromCtx(c.Request.Context()),
		})
	}
}
