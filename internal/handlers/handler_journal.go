package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/middleware"
)

// journalHandler handles HTTP requests for the legal journal.
type journalHandler struct {
	journalService   portssvc.JournalSvcFacade
	integrityService portssvc.IntegritySvcFacade
}

func newJournalHandler(js portssvc.JournalSvcFacade, is portssvc.IntegritySvcFacade) *journalHandler {
	return &journalHandler{journalService: js, integrityService: is}
}

// RegisterJournalRoutes registers the legal journal routes on rg.
func RegisterJournalRoutes(rg *gin.RouterGroup, journalService portssvc.JournalSvcFacade, integrityService portssvc.IntegritySvcFacade) {
	h := newJournalHandler(journalService, integrityService)

	journal := rg.Group("/journal")
	{
		journal.POST("/entries", h.appendEntry)
		journal.GET("/entries", h.listEntries)
		journal.GET("/entries/:sequence", h.getEntry)
		journal.POST("/sales", h.logSale)
		journal.POST("/refunds", h.logRefund)
		journal.POST("/corrections", h.logCorrection)
		journal.POST("/archives", h.logArchive)
		journal.GET("/verify", h.verify)
	}
}

// appendEntry godoc
// @Summary Append a journal entry
// @Description Chains a raw entry onto the legal journal. Sequence number, hashes and timestamp are assigned by the ledger. CLOSURE entries are rejected; refunds are stored negative.
// @Tags journal
// @Accept  json
// @Produce  json
// @Param   entry body dto.AppendEntryRequest true "Entry to append"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to append journal entry"
// @Security BearerAuth
// @Router /journal/entries [post]
func (h *journalHandler) appendEntry(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.AppendEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for AppendEntry", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if req.TransactionType == domain.TransactionClosure {
		logger.Warn("Rejected raw closure entry")
		c.JSON(http.StatusBadRequest, gin.H{"error": "closure entries are journaled by sealing a closure bulletin"})
		return
	}
	req.UserID = middleware.UserIDPtr(c)

	entry, err := h.journalService.Append(c.Request.Context(), req)
	if err != nil {
		respondError(c, logger, err, "Failed to append journal entry")
		return
	}

	c.JSON(http.StatusCreated, dto.ToJournalEntryResponse(entry))
}

// logSale godoc
// @Summary Journal a sale
// @Description Records a settled order in the legal journal using the order snapshot as payload.
// @Tags journal
// @Accept  json
// @Produce  json
// @Param   sale body dto.LogSaleRequest true "Order to journal"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 404 {object} map[string]string "Order not found"
// @Failure 500 {object} map[string]string "Failed to journal sale"
// @Security BearerAuth
// @Router /journal/sales [post]
func (h *journalHandler) logSale(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.LogSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for LogSale", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	entry, err := h.journalService.LogSale(c.Request.Context(), req.OrderID, middleware.UserIDPtr(c))
	if err != nil {
		respondError(c, logger, err, "Failed to journal sale")
		return
	}

	c.JSON(http.StatusCreated, dto.ToJournalEntryResponse(entry))
}

// logRefund godoc
// @Summary Journal a refund
// @Description Records a refund. Amounts are stored negated regardless of the sign supplied.
// @Tags journal
// @Accept  json
// @Produce  json
// @Param   refund body dto.LogRefundRequest true "Refund details"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 500 {object} map[string]string "Failed to journal refund"
// @Security BearerAuth
// @Router /journal/refunds [post]
func (h *journalHandler) logRefund(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.LogRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for LogRefund", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	entry, err := h.journalService.LogRefund(c.Request.Context(), req, middleware.UserIDPtr(c))
	if err != nil {
		respondError(c, logger, err, "Failed to journal refund")
		return
	}

	c.JSON(http.StatusCreated, dto.ToJournalEntryResponse(entry))
}

// logCorrection godoc
// @Summary Journal a correction
// @Tags journal
// @Accept  json
// @Produce  json
// @Param   correction body dto.LogCorrectionRequest true "Correction details"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 500 {object} map[string]string "Failed to journal correction"
// @Security BearerAuth
// @Router /journal/corrections [post]
func (h *journalHandler) logCorrection(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.LogCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for LogCorrection", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	entry, err := h.journalService.LogCorrection(c.Request.Context(), req, middleware.UserIDPtr(c))
	if err != nil {
		respondError(c, logger, err, "Failed to journal correction")
		return
	}

	c.JSON(http.StatusCreated, dto.ToJournalEntryResponse(entry))
}

// logArchive godoc
// @Summary Journal an archive marker
// @Tags journal
// @Accept  json
// @Produce  json
// @Param   archive body dto.LogArchiveRequest true "Archive details"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 500 {object} map[string]string "Failed to journal archive"
// @Security BearerAuth
// @Router /journal/archives [post]
func (h *journalHandler) logArchive(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var req dto.LogArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for LogArchive", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	entry, err := h.journalService.LogArchive(c.Request.Context(), req, middleware.UserIDPtr(c))
	if err != nil {
		respondError(c, logger, err, "Failed to journal archive")
		return
	}

	c.JSON(http.StatusCreated, dto.ToJournalEntryResponse(entry))
}

// listEntries godoc
// @Summary List journal entries
// @Description Pages through the journal in sequence order. Pass nextSequence as "after" to fetch the next page.
// @Tags journal
// @Produce  json
// @Param   after query int false "Return entries after this sequence number"
// @Param   limit query int false "Page size (max 1000)"
// @Success 200 {object} dto.ListEntriesResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 500 {object} map[string]string "Failed to list journal entries"
// @Security BearerAuth
// @Router /journal/entries [get]
func (h *journalHandler) listEntries(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	var params dto.ListEntriesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query parameters for ListEntries", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	entries, err := h.journalService.ListEntries(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "Failed to list journal entries")
		return
	}

	c.JSON(http.StatusOK, dto.ToListEntriesResponse(entries, params.EffectiveLimit()))
}

// getEntry godoc
// @Summary Get a journal entry
// @Tags journal
// @Produce  json
// @Param   sequence path int true "Sequence number"
// @Success 200 {object} dto.JournalEntryResponse
// @Failure 400 {object} map[string]string "Invalid sequence number"
// @Failure 404 {object} map[string]string "Journal entry not found"
// @Failure 500 {object} map[string]string "Failed to retrieve journal entry"
// @Security BearerAuth
// @Router /journal/entries/{sequence} [get]
func (h *journalHandler) getEntry(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	sequence, err := strconv.ParseInt(c.Param("sequence"), 10, 64)
	if err != nil || sequence < 1 {
		logger.Warn("Invalid sequence number", slog.String("sequence", c.Param("sequence")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sequence number"})
		return
	}

	entry, err := h.journalService.GetEntry(c.Request.Context(), sequence)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve journal entry")
		return
	}

	c.JSON(http.StatusOK, dto.ToJournalEntryResponse(entry))
}

// verify godoc
// @Summary Verify the journal hash chain
// @Description Replays the whole chain. Integrity violations are part of the report; the request itself still succeeds.
// @Tags journal
// @Produce  json
// @Success 200 {object} domain.IntegrityReport
// @Failure 500 {object} map[string]string "Failed to verify journal"
// @Security BearerAuth
// @Router /journal/verify [get]
func (h *journalHandler) verify(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)

	report, err := h.integrityService.Verify(c.Request.Context())
	if err != nil {
		respondError(c, logger, err, "Failed to verify journal")
		return
	}

	c.JSON(http.StatusOK, report)
}
