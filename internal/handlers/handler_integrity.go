package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/middleware"
)

type integrityHandler struct {
	integrityService portssvc.IntegritySvcFacade
}

// RegisterIntegrityRoutes registers the integrity exception routes on rg.
func RegisterIntegrityRoutes(rg *gin.RouterGroup, integrityService portssvc.IntegritySvcFacade) {
	h := &integrityHandler{integrityService: integrityService}

	integrity := rg.Group("/integrity")
	{
		integrity.POST("/exceptions", h.registerException)
	}
}

// registerException godoc
// @Summary Document a remediated chain break
// @Description Registers a historical hash-chain break as tolerated. The remediation entry must be a HASH_CHAIN_INTEGRITY correction recorded after the break.
// @Tags integrity
// @Accept  json
// @Produce  json
// @Param   exception body dto.RegisterExceptionRequest true "Exception details"
// @Success 201 {object} domain.IntegrityException
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 404 {object} map[string]string "Remediation entry not found"
// @Failure 409 {object} map[string]string "Exception already registered"
// @Failure 500 {object} map[string]string "Failed to register exception"
// @Security BearerAuth
// @Router /integrity/exceptions [post]
func (h *integrityHandler) registerException(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.RegisterExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for RegisterException", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	exception, err := h.integrityService.RegisterException(c.Request.Context(), req)
	if err != nil {
		respondError(c, logger, err, "Failed to register exception")
		return
	}

	logger.Info("Integrity exception registered",
		slog.Int64("sequence_number", exception.SequenceNumber),
		slog.Int64("remediation_entry_id", exception.RemediationEntryID))
	c.JSON(http.StatusCreated, exception)
}
