package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/dto"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
	"github.com/SscSPs/money_transfer_engine/internal/utils"
	"github.com/SscSPs/money_transfer_engine/internal/utils/pagination"
	"github.com/gin-gonic/gin"
)

// transferHandler handles HTTP requests for quotes and transfers.
type transferHandler struct {
	transferService portssvc.TransferSvcFacade
}

func newTransferHandler(ts portssvc.TransferSvcFacade) *transferHandler {
	return &transferHandler{transferService: ts}
}

// RegisterTransferRoutes registers the customer routes under /transfers and the operator
// routes, which additionally require an operations token.
func RegisterTransferRoutes(rg *gin.RouterGroup, transferService portssvc.TransferSvcFacade) {
	h := newTransferHandler(transferService)

	transfers := rg.Group("/transfers")
	{
		transfers.POST("/quotes", h.createQuote)
		transfers.POST("/quotes/:quoteID/initiate", h.initiateTransfer)
		transfers.GET("", h.listTransfers)
		transfers.GET("/limits", h.getLimits)
		transfers.GET("/fees/:transferType", h.getFeeSchedule)
		transfers.GET("/exchange-rates", h.getExchangeRates)
		transfers.GET("/corridors", h.getCorridors)
		transfers.GET("/:transferID/track", h.trackTransfer)
		transfers.POST("/:transferID/cancel", h.cancelTransfer)

		ops := transfers.Group("", middleware.RequireAudience(utils.OperationsAudience))
		ops.POST("/:transferID/hold", h.holdTransfer)
		ops.POST("/:transferID/release", h.releaseTransfer)
	}
}

// respondError maps service errors onto HTTP statuses. Unknown errors are logged and hidden.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrBusinessRule):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrExternalService):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logger.Error(fallback, slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	if status == http.StatusServiceUnavailable {
		logger.Error("Downstream dependency failed", slog.String("error", err.Error()))
	} else {
		logger.Warn("Request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireUser returns the authenticated user or writes 401.
func requireUser(c *gin.Context, logger *slog.Logger) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// createQuote godoc
// @Summary Quote a transfer
// @Description Prices a transfer and returns the primary quote plus faster alternatives
// @Tags transfers
// @Accept  json
// @Produce  json
// @Param   quote body dto.CreateQuoteRequest true "Quote request"
// @Success 201 {object} dto.QuoteBatchResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Account or beneficiary not found"
// @Failure 503 {object} map[string]string "Rates unavailable"
// @Security BearerAuth
// @Router /transfers/quotes [post]
func (h *transferHandler) createQuote(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}

	var req dto.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateQuote", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if req.Priority == "" {
		req.Priority = string(domain.PriorityStandard)
	}

	logger.Info("Received request to quote transfer",
		slog.String("from", req.FromCurrency),
		slog.String("to", req.ToCurrency),
		slog.String("transfer_type", req.TransferType))

	batch, err := h.transferService.CreateQuote(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, logger, err, "Failed to create quote")
		return
	}
	c.JSON(http.StatusCreated, dto.ToQuoteBatchResponse(batch))
}

// initiateTransfer godoc
// @Summary Initiate a transfer from a quote
// @Tags transfers
// @Accept  json
// @Produce  json
// @Param   quoteID path string true "Quote ID"
// @Param   transfer body dto.InitiateTransferRequest true "Transfer details"
// @Success 201 {object} dto.TransferResponse
// @Failure 422 {object} map[string]string "Quote expired or used, limits exceeded, compliance or funds"
// @Security BearerAuth
// @Router /transfers/quotes/{quoteID}/initiate [post]
func (h *transferHandler) initiateTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	quoteID := c.Param("quoteID")
	logger = logger.With(slog.String("quote_id", quoteID))

	var req dto.InitiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for InitiateTransfer", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	transfer, err := h.transferService.InitiateTransfer(c.Request.Context(), userID, quoteID, req)
	if err != nil {
		respondError(c, logger, err, "Failed to initiate transfer")
		return
	}

	logger.Info("Transfer initiated", slog.String("transfer_id", transfer.TransferID))
	c.JSON(http.StatusCreated, dto.ToTransferResponse(transfer))
}

// cancelTransfer godoc
// @Summary Cancel a transfer
// @Tags transfers
// @Accept  json
// @Produce  json
// @Param   transferID path string true "Transfer ID"
// @Param   cancel body dto.CancelTransferRequest true "Cancellation"
// @Success 200 {object} dto.TransferResponse
// @Failure 422 {object} map[string]string "Transfer already terminal"
// @Security BearerAuth
// @Router /transfers/{transferID}/cancel [post]
func (h *transferHandler) cancelTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	transferID := c.Param("transferID")
	logger = logger.With(slog.String("transfer_id", transferID))

	var req dto.CancelTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CancelTransfer", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	transfer, err := h.transferService.CancelTransfer(c.Request.Context(), userID, transferID, req)
	if err != nil {
		respondError(c, logger, err, "Failed to cancel transfer")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransferResponse(transfer))
}

// trackTransfer godoc
// @Summary Track a transfer
// @Tags transfers
// @Produce  json
// @Param   transferID path string true "Transfer ID"
// @Success 200 {object} dto.TrackTransferResponse
// @Failure 404 {object} map[string]string "Transfer not found"
// @Security BearerAuth
// @Router /transfers/{transferID}/track [get]
func (h *transferHandler) trackTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	transferID := c.Param("transferID")

	info, err := h.transferService.TrackTransfer(c.Request.Context(), userID, transferID)
	if err != nil {
		respondError(c, logger.With(slog.String("transfer_id", transferID)), err, "Failed to track transfer")
		return
	}
	c.JSON(http.StatusOK, dto.ToTrackTransferResponse(info))
}

// listTransfers godoc
// @Summary List transfers
// @Description Newest first. pageToken from a previous response continues the listing.
// @Tags transfers
// @Produce  json
// @Param   status query string false "Status filter"
// @Param   limit query int false "Page size"
// @Param   offset query int false "Offset"
// @Param   pageToken query string false "Continuation token"
// @Success 200 {object} dto.ListTransfersResponse
// @Security BearerAuth
// @Router /transfers [get]
func (h *transferHandler) listTransfers(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}

	var params dto.ListTransfersParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query parameters for ListTransfers", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	if params.PageToken != "" {
		token, err := pagination.DecodePageToken(params.PageToken)
		if err != nil || !strings.EqualFold(token.Filter, params.Status) {
			logger.Warn("Invalid page token", slog.String("page_token", params.PageToken))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page token"})
			return
		}
		params.Offset = token.Offset
	}

	page, err := h.transferService.ListTransfers(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, logger, err, "Failed to list transfers")
		return
	}
	c.JSON(http.StatusOK, dto.ToListTransfersResponse(page, params.Status))
}

// getLimits godoc
// @Summary Current spend limits and usage
// @Tags transfers
// @Produce  json
// @Success 200 {object} domain.LimitsWindow
// @Security BearerAuth
// @Router /transfers/limits [get]
func (h *transferHandler) getLimits(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}

	limits, err := h.transferService.GetLimits(c.Request.Context(), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to compute limits")
		return
	}
	c.JSON(http.StatusOK, limits)
}

// getFeeSchedule godoc
// @Summary Fee schedule for a transfer type
// @Tags transfers
// @Produce  json
// @Param   transferType path string true "Transfer type"
// @Success 200 {object} domain.FeeSchedule
// @Failure 400 {object} map[string]string "Unsupported transfer type"
// @Security BearerAuth
// @Router /transfers/fees/{transferType} [get]
func (h *transferHandler) getFeeSchedule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transferType := domain.TransferType(strings.ToLower(c.Param("transferType")))

	schedule, err := h.transferService.GetFeeSchedule(c.Request.Context(), transferType)
	if err != nil {
		respondError(c, logger, err, "Failed to load fee schedule")
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// getExchangeRates godoc
// @Summary Indicative exchange rates
// @Tags transfers
// @Produce  json
// @Param   base query string false "Base currency (default USD)"
// @Param   symbols query string false "Comma separated quote currencies"
// @Success 200 {array} dto.ExchangeRateResponse
// @Security BearerAuth
// @Router /transfers/exchange-rates [get]
func (h *transferHandler) getExchangeRates(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var params dto.ExchangeRatesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query parameters for ExchangeRates", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	var symbols []string
	if params.Symbols != "" {
		symbols = strings.Split(params.Symbols, ",")
	}

	rates, err := h.transferService.GetExchangeRates(c.Request.Context(), params.Base, symbols)
	if err != nil {
		respondError(c, logger, err, "Failed to load exchange rates")
		return
	}
	c.JSON(http.StatusOK, dto.ToExchangeRateResponses(rates))
}

// getCorridors godoc
// @Summary Supported corridors
// @Tags transfers
// @Produce  json
// @Success 200 {array} domain.Corridor
// @Security BearerAuth
// @Router /transfers/corridors [get]
func (h *transferHandler) getCorridors(c *gin.Context) {
	c.JSON(http.StatusOK, h.transferService.GetCorridors(c.Request.Context()))
}

func (h *transferHandler) holdTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transferID := c.Param("transferID")
	logger = logger.With(slog.String("transfer_id", transferID))

	var req dto.HoldTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for HoldTransfer", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	transfer, err := h.transferService.HoldTransfer(c.Request.Context(), transferID, req.Reason)
	if err != nil {
		respondError(c, logger, err, "Failed to hold transfer")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransferResponse(transfer))
}

func (h *transferHandler) releaseTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transferID := c.Param("transferID")

	transfer, err := h.transferService.ReleaseTransfer(c.Request.Context(), transferID)
	if err != nil {
		respondError(c, logger.With(slog.String("transfer_id", transferID)), err, "Failed to release transfer")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransferResponse(transfer))
}
