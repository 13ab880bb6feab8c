package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour

	// maxAdjustAttempts bounds the optimistic-lock retry loop. Three is
	// enough under realistic contention; past that the caller gets a 409
	// and decides whether to resubmit.
	maxAdjustAttempts = 3
)

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	idempCache ports.IdempotencyCache
	audit      ports.AuditService
	maxAmount  int64
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	idempCache ports.IdempotencyCache,
	audit ports.AuditService,
	maxAmount int64,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		idempCache: idempCache,
		audit:      audit,
		maxAmount:  maxAmount,
		log:        log,
	}
}

// Transfer moves amount from the caller's wallet to the recipient's. The
// debit leg is inserted pending before any balance changes, so a crash
// leaves evidence instead of lost money. Balance changes go through
// version-checked adjustments; duplicates collapse on the idempotency key.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.maxAmount > 0 && req.Amount > s.maxAmount {
		return nil, apperror.ErrAmountLimitExceeded(s.maxAmount)
	}

	cacheKey := ""
	if req.IdempotencyKey != "" {
		cacheKey = fmt.Sprintf("transfer:%s:%s", req.UserID, req.IdempotencyKey)
		if result := s.cachedResult(ctx, cacheKey); result != nil {
			return result, nil
		}
	}

	sender, err := s.walletRepo.GetOrCreateByUserID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load sender wallet: %w", err))
	}

	recipient, err := s.walletRepo.GetByWalletNumber(ctx, req.RecipientWalletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load recipient wallet: %w", err))
	}
	if recipient == nil {
		return nil, apperror.ErrRecipientNotFound()
	}
	if recipient.ID == sender.ID {
		return nil, apperror.ErrSelfTransfer()
	}

	// The debit leg is the idempotency anchor: its unique reference and
	// idempotency key make re-submission return the original row.
	outLeg := &domain.Transaction{
		ID:                   uuid.New(),
		Reference:            domain.NewReference(),
		Kind:                 domain.TransactionKindTransferOut,
		Amount:               req.Amount,
		Status:               domain.TransactionStatusPending,
		WalletID:             sender.ID,
		CounterpartyWalletID: &recipient.ID,
	}
	if req.IdempotencyKey != "" {
		key := scopedIdempotencyKey(req.UserID, req.IdempotencyKey)
		outLeg.IdempotencyKey = &key
	}

	stored, created, err := s.txRepo.InsertIfAbsent(ctx, outLeg)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !created {
		// Duplicate submission: hand back the first attempt's outcome
		// without touching any balance. The stored row must belong to this
		// sender; anything else is a reference collision, never a replay.
		if stored.WalletID != sender.ID {
			return nil, apperror.InternalError(fmt.Errorf("reference collision on %s", stored.Reference))
		}
		s.log.Info().
			Str("reference", stored.Reference).
			Str("status", string(stored.Status)).
			Msg("transfer replay detected")
		return resultFromTransaction(stored), nil
	}

	// Debit the sender.
	if _, err := s.adjustWithRetry(ctx, sender.ID, -req.Amount); err != nil {
		s.markFailed(ctx, outLeg.ID)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Credit the recipient. A credit cannot fail on funds, only on write
	// contention; if that persists the debit is compensated.
	if _, err := s.adjustWithRetry(ctx, recipient.ID, req.Amount); err != nil {
		if _, compErr := s.adjustWithRetry(ctx, sender.ID, req.Amount); compErr != nil {
			// Money is now missing from the sender with no credited
			// counterpart. Loud log; the pending debit leg carries
			// enough to reconcile by hand.
			s.log.Error().
				Err(compErr).
				Str("reference", outLeg.Reference).
				Int64("amount", req.Amount).
				Msg("transfer compensation failed, manual reconciliation required")
		}
		s.markFailed(ctx, outLeg.ID)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Record the credit leg, correlated to the debit by reference.
	inLeg := &domain.Transaction{
		ID:                   uuid.New(),
		Reference:            domain.NewReference(),
		Kind:                 domain.TransactionKindTransferIn,
		Amount:               req.Amount,
		Status:               domain.TransactionStatusSuccess,
		WalletID:             recipient.ID,
		CounterpartyWalletID: &sender.ID,
		CorrelationRef:       &outLeg.Reference,
	}
	var inErr error
	for attempt := 0; attempt < maxAdjustAttempts; attempt++ {
		if _, _, inErr = s.txRepo.InsertIfAbsent(ctx, inLeg); inErr == nil {
			break
		}
	}
	if inErr != nil {
		// The recipient holds the money but has no credit record. Flag it
		// for reconciliation rather than failing a transfer that settled.
		s.log.Error().Err(inErr).Str("reference", outLeg.Reference).Msg("credit leg not recorded, manual reconciliation required")
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       &req.UserID,
			Action:       domain.AuditActionReconcileRequired,
			ResourceType: "transaction",
			ResourceID:   outLeg.Reference,
			Details:      `{"missing":"transfer_in"}`,
			CreatedAt:    time.Now().UTC(),
		})
	}

	claimed, err := s.txRepo.TransitionStatus(ctx, outLeg.ID, domain.TransactionStatusPending, domain.TransactionStatusSuccess)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !claimed {
		s.log.Warn().Str("reference", outLeg.Reference).Msg("debit leg no longer pending at settlement")
	}

	result := &ports.TransferResult{
		Reference: outLeg.Reference,
		Status:    domain.TransactionStatusSuccess,
		Message:   "Transfer completed",
	}

	if cacheKey != "" {
		s.cacheResult(ctx, cacheKey, result)
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &req.UserID,
		Action:       domain.AuditActionTransfer,
		ResourceType: "transaction",
		ResourceID:   outLeg.Reference,
		CreatedAt:    time.Now().UTC(),
	})
	metrics.TransfersTotal.WithLabelValues("success").Inc()

	s.log.Info().
		Str("reference", outLeg.Reference).
		Str("recipient_wallet", recipient.WalletNumber).
		Int64("amount", req.Amount).
		Msg("transfer completed")

	return result, nil
}

// adjustWithRetry applies delta to the wallet through read-check-adjust
// rounds, retrying on version conflicts up to maxAdjustAttempts times.
func (s *TransferServiceImpl) adjustWithRetry(ctx context.Context, walletID uuid.UUID, delta int64) (*domain.Wallet, error) {
	var lastErr error
	for attempt := 0; attempt < maxAdjustAttempts; attempt++ {
		wallet, err := s.walletRepo.GetByID(ctx, walletID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.ErrNotFound("wallet")
		}
		if delta < 0 && !wallet.CanDebit(-delta) {
			return nil, apperror.ErrInsufficientBalance()
		}

		updated, err := s.walletRepo.AtomicAdjust(ctx, walletID, delta, wallet.Version)
		if err == nil {
			return updated, nil
		}
		if !isVersionConflict(err) {
			return nil, apperror.InternalError(err)
		}

		// Another writer got there first: re-read and try again.
		lastErr = err
		metrics.BalanceConflictRetriesTotal.Inc()
	}
	return nil, lastErr
}

func (s *TransferServiceImpl) markFailed(ctx context.Context, txnID uuid.UUID) {
	if _, err := s.txRepo.TransitionStatus(ctx, txnID, domain.TransactionStatusPending, domain.TransactionStatusFailed); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txnID.String()).Msg("failed to mark transaction failed")
	}
}

func (s *TransferServiceImpl) cachedResult(ctx context.Context, key string) *ports.TransferResult {
	raw, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache read failed, falling through to DB")
		return nil
	}
	if raw == nil {
		return nil
	}
	var result ports.TransferResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("corrupt idempotency cache entry")
		return nil
	}
	return &result
}

func (s *TransferServiceImpl) cacheResult(ctx context.Context, key string, result *ports.TransferResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, raw, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache write failed")
	}
}

// scopedIdempotencyKey namespaces a client token by its sender, so one
// caller's token can never suppress or expose another caller's transfer.
func scopedIdempotencyKey(userID uuid.UUID, token string) string {
	return userID.String() + ":" + token
}

func resultFromTransaction(txn *domain.Transaction) *ports.TransferResult {
	message := "Transfer already processed"
	if txn.Status == domain.TransactionStatusPending {
		message = "Transfer is being processed"
	}
	return &ports.TransferResult{
		Reference: txn.Reference,
		Status:    txn.Status,
		Message:   message,
	}
}

func isVersionConflict(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == apperror.ErrVersionConflict().Code
}
