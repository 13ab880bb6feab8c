package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxWebhookBody caps the raw webhook payload read into memory.
const maxWebhookBody = 512 * 1024

// WalletHandler handles wallet, deposit, and transfer endpoints.
type WalletHandler struct {
	depositSvc  ports.DepositService
	transferSvc ports.TransferService
	readSvc     ports.WalletReadService
	log         zerolog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(depositSvc ports.DepositService, transferSvc ports.TransferService, readSvc ports.WalletReadService, log zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		depositSvc:  depositSvc,
		transferSvc: transferSvc,
		readSvc:     readSvc,
		log:         log,
	}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	balance, err := h.readSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletNumber: balance.WalletNumber,
		Balance:      balance.Balance,
		Currency:     balance.Currency,
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions. kind and status
// query parameters narrow the result; absent means all.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var query dto.TransactionFilterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := ports.TransactionFilter{
		Kind:   domain.TransactionKind(query.Kind),
		Status: domain.TransactionStatus(query.Status),
	}

	txns, err := h.readSvc.ListTransactions(c.Request.Context(), userID, filter, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		items = append(items, transactionResponse(&txn))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
	})
}

// GetTransaction handles GET /api/v1/wallet/transactions/:reference.
func (h *WalletHandler) GetTransaction(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	txn, err := h.readSvc.GetTransaction(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, transactionResponse(txn))
}

// GetStats handles GET /api/v1/wallet/stats.
func (h *WalletHandler) GetStats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	stats, err := h.readSvc.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, stats)
}

func transactionResponse(txn *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		Reference:      txn.Reference,
		Kind:           string(txn.Kind),
		Amount:         txn.Amount,
		Status:         string(txn.Status),
		CorrelationRef: txn.CorrelationRef,
		CreatedAt:      txn.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		UserID:                userID,
		RecipientWalletNumber: req.RecipientWalletNumber,
		Amount:                req.Amount,
		IdempotencyKey:        req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TransferResponse{
		Reference: result.Reference,
		Status:    string(result.Status),
		Message:   result.Message,
	})
}

// InitiateDeposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) InitiateDeposit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	intent, err := h.depositSvc.InitiateDeposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DepositResponse{
		Reference:        intent.Reference,
		AuthorizationURL: intent.AuthorizationURL,
	})
}

// DepositStatus handles GET /api/v1/wallet/deposit/:reference/status.
func (h *WalletHandler) DepositStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	status, err := h.depositSvc.GetStatus(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DepositStatusResponse{
		Reference: status.Reference,
		Status:    string(status.Status),
		Amount:    status.Amount,
		Currency:  status.Currency,
	})
}

// Webhook handles POST /api/v1/wallet/paystack/webhook. The provider expects
// a bare acknowledgment, not the standard response envelope.
func (h *WalletHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": false})
		return
	}

	signature := c.GetHeader("X-Paystack-Signature")
	if err := h.depositSvc.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		h.log.Warn().Err(err).Msg("webhook rejected")
		c.JSON(webhookStatus(err), gin.H{"status": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": true})
}

func webhookStatus(err error) int {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
