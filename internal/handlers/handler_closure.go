package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// closureHandler handles HTTP requests for closure bulletins.
type closureHandler struct {
	closureService portssvc.ClosureSvcFacade
	exporter       portssvc.ClosureExporter
}

func newClosureHandler(cs portssvc.ClosureSvcFacade, exporter portssvc.ClosureExporter) *closureHandler {
	return &closureHandler{closureService: cs, exporter: exporter}
}

// RegisterClosureRoutes registers the closure routes on rg. The export route
// is only registered when an exporter is configured.
func RegisterClosureRoutes(rg *gin.RouterGroup, closureService portssvc.ClosureSvcFacade, exporter portssvc.ClosureExporter) {
	h := newClosureHandler(closureService, exporter)

	closures := rg.Group("/closures")
	{
		closures.POST("", h.createClosure)
		closures.GET("", h.listClosures)
		closures.GET("/:closureID", h.getClosure)
		if exporter != nil {
			closures.GET("/:closureID/export", h.exportClosure)
		}
	}
}

// createClosure godoc
// @Summary Seal a fiscal period
// @Description Aggregates the period of the given type containing referenceDate into an immutable closure bulletin.
// @Tags closures
// @Accept  json
// @Produce  json
// @Param   closure body dto.CreateClosureRequest true "Closure type and reference date"
// @Success 201 {object} dto.ClosureResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 409 {object} map[string]string "Period already closed"
// @Failure 500 {object} map[string]string "Failed to create closure"
// @Security BearerAuth
// @Router /closures [post]
func (h *closureHandler) createClosure(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.CreateClosureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateClosure", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	closureType, err := domain.ParseClosureType(req.ClosureType)
	if err != nil {
		logger.Warn("Invalid closure type", slog.String("closure_type", req.ClosureType))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Info("Received request to create closure",
		slog.String("closure_type", string(closureType)),
		slog.Time("reference_date", req.ReferenceDate))

	bulletin, err := h.closureService.CreateClosure(c.Request.Context(), closureType, req.ReferenceDate)
	if err != nil {
		// A mirroring failure still returns the sealed bulletin.
		if bulletin != nil {
			logger.Warn("Closure sealed but not mirrored into the journal", slog.String("error", err.Error()),
				slog.String("closure_id", bulletin.ClosureID))
			c.JSON(http.StatusCreated, dto.ToClosureResponse(bulletin))
			return
		}
		respondError(c, logger, err, "Failed to create closure")
		return
	}

	c.JSON(http.StatusCreated, dto.ToClosureResponse(bulletin))
}

// listClosures godoc
// @Summary List closure bulletins
// @Description Most recent first, optionally filtered by type.
// @Tags closures
// @Produce  json
// @Param   type query string false "DAILY, WEEKLY, MONTHLY or ANNUAL"
// @Param   limit query int false "Maximum number of bulletins (max 500)"
// @Success 200 {array} dto.ClosureResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 500 {object} map[string]string "Failed to list closures"
// @Security BearerAuth
// @Router /closures [get]
func (h *closureHandler) listClosures(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var params dto.ListClosuresParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query parameters for ListClosures", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	var closureType domain.ClosureType
	if params.ClosureType != "" {
		ct, err := domain.ParseClosureType(params.ClosureType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		closureType = ct
	}

	bulletins, err := h.closureService.ListClosures(c.Request.Context(), closureType, params.Limit)
	if err != nil {
		respondError(c, logger, err, "Failed to list closures")
		return
	}

	c.JSON(http.StatusOK, dto.ToClosureResponses(bulletins))
}

// getClosure godoc
// @Summary Get a closure bulletin
// @Tags closures
// @Produce  json
// @Param   closureID path string true "Closure ID"
// @Success 200 {object} dto.ClosureResponse
// @Failure 400 {object} map[string]string "Invalid closure ID"
// @Failure 404 {object} map[string]string "Closure not found"
// @Failure 500 {object} map[string]string "Failed to retrieve closure"
// @Security BearerAuth
// @Router /closures/{closureID} [get]
func (h *closureHandler) getClosure(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	closureID := c.Param("closureID")

	bulletin, err := h.closureService.GetClosure(c.Request.Context(), closureID)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve closure")
		return
	}

	c.JSON(http.StatusOK, dto.ToClosureResponse(bulletin))
}

// exportClosure godoc
// @Summary Export a closure bulletin as XLSX
// @Tags closures
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param   closureID path string true "Closure ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string "Closure not found"
// @Failure 500 {object} map[string]string "Failed to export closure"
// @Security BearerAuth
// @Router /closures/{closureID}/export [get]
func (h *closureHandler) exportClosure(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	closureID := c.Param("closureID")

	out, err := h.exporter.ExportClosureXLSX(c.Request.Context(), closureID)
	if err != nil {
		respondError(c, logger, err, "Failed to export closure")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="closure-%s.xlsx"`, closureID))
	c.Data(http.StatusOK, xlsxContentType, out)
}
