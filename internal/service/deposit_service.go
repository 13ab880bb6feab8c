package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	userRepo   ports.UserRepository
	provider   ports.PaymentProvider
	transactor ports.DBTransactor
	audit      ports.AuditService
	maxAmount  int64
	log        zerolog.Logger
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	userRepo ports.UserRepository,
	provider ports.PaymentProvider,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	maxAmount int64,
	log zerolog.Logger,
) *DepositServiceImpl {
	return &DepositServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		userRepo:   userRepo,
		provider:   provider,
		transactor: transactor,
		audit:      audit,
		maxAmount:  maxAmount,
		log:        log,
	}
}

// InitiateDeposit records a pending deposit and registers the checkout with
// the provider. The pending row exists before the provider call, so even a
// crash mid-call leaves a reference the webhook can later resolve.
func (s *DepositServiceImpl) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64) (*ports.DepositIntent, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.maxAmount > 0 && amount > s.maxAmount {
		return nil, apperror.ErrAmountLimitExceeded(s.maxAmount)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}

	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}

	txn := &domain.Transaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		Kind:      domain.TransactionKindDeposit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		WalletID:  wallet.ID,
	}
	if _, _, err := s.txRepo.InsertIfAbsent(ctx, txn); err != nil {
		return nil, apperror.InternalError(err)
	}

	checkout, err := s.provider.InitializeTransaction(ctx, user.Email, amount, txn.Reference)
	if err != nil {
		// The provider never saw this reference; close the row out.
		if _, ferr := s.txRepo.TransitionStatus(ctx, txn.ID, domain.TransactionStatusPending, domain.TransactionStatusFailed); ferr != nil {
			s.log.Error().Err(ferr).Str("reference", txn.Reference).Msg("failed to mark deposit failed")
		}
		return nil, err
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionDepositInit,
		ResourceType: "transaction",
		ResourceID:   txn.Reference,
		CreatedAt:    time.Now().UTC(),
	})

	s.log.Info().
		Str("reference", txn.Reference).
		Int64("amount", amount).
		Msg("deposit initiated")

	return &ports.DepositIntent{
		Reference:        txn.Reference,
		AuthorizationURL: checkout.AuthorizationURL,
	}, nil
}

// webhookEvent is the subset of the provider notification the ledger acts on.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

// HandleWebhook applies a provider notification to the referenced deposit.
// Signature first, then reference lookup, then a status compare-and-set: the
// CAS is what makes double delivery credit exactly once.
func (s *DepositServiceImpl) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.provider.VerifyWebhookSignature(rawBody, signature) {
		return apperror.ErrInvalidSignature()
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return apperror.Validation("malformed webhook payload")
	}

	switch event.Event {
	case "charge.success", "charge.failed":
	default:
		// Acknowledge event types we do not act on, or the provider
		// keeps redelivering them.
		s.log.Debug().Str("event", event.Event).Msg("ignoring webhook event")
		return nil
	}

	txn, err := s.txRepo.GetByReference(ctx, event.Data.Reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if txn == nil || txn.Kind != domain.TransactionKindDeposit {
		return apperror.ErrUnknownReference()
	}

	if txn.IsTerminal() {
		metrics.WebhookReplaysTotal.Inc()
		s.log.Info().
			Str("reference", txn.Reference).
			Str("status", string(txn.Status)).
			Msg("webhook replay for resolved deposit")
		return nil
	}

	if event.Data.Amount != 0 && event.Data.Amount != txn.Amount {
		// Credit what we recorded at initiation, never what the payload
		// claims. The mismatch is worth an alert either way.
		s.log.Warn().
			Str("reference", txn.Reference).
			Int64("recorded", txn.Amount).
			Int64("reported", event.Data.Amount).
			Msg("webhook amount differs from recorded deposit")
	}

	if event.Event == "charge.failed" {
		claimed, err := s.txRepo.TransitionStatus(ctx, txn.ID, domain.TransactionStatusPending, domain.TransactionStatusFailed)
		if err != nil {
			return apperror.InternalError(err)
		}
		if !claimed {
			metrics.WebhookReplaysTotal.Inc()
			return nil
		}
		metrics.DepositsTotal.WithLabelValues("failed").Inc()
		s.log.Info().Str("reference", txn.Reference).Msg("deposit failed at provider")
		return nil
	}

	return s.settleSuccess(ctx, txn)
}

// settleSuccess claims the pending deposit and credits the wallet in one
// database transaction. A concurrent delivery loses the claim and commits
// nothing.
func (s *DepositServiceImpl) settleSuccess(ctx context.Context, txn *domain.Transaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	claimed, err := s.txRepo.TransitionStatusInTx(ctx, dbTx, txn.ID, domain.TransactionStatusPending, domain.TransactionStatusSuccess)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !claimed {
		metrics.WebhookReplaysTotal.Inc()
		return nil
	}

	if err := s.walletRepo.CreditInTx(ctx, dbTx, txn.WalletID, txn.Amount); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit deposit settlement: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionDepositCredit,
		ResourceType: "transaction",
		ResourceID:   txn.Reference,
		CreatedAt:    time.Now().UTC(),
	})
	metrics.DepositsTotal.WithLabelValues("success").Inc()

	s.log.Info().
		Str("reference", txn.Reference).
		Int64("amount", txn.Amount).
		Msg("deposit credited")
	return nil
}

// GetStatus returns the state of the caller's own deposit.
func (s *DepositServiceImpl) GetStatus(ctx context.Context, userID uuid.UUID, reference string) (*ports.DepositStatus, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil || txn.Kind != domain.TransactionKindDeposit {
		return nil, apperror.ErrUnknownReference()
	}

	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn.WalletID != wallet.ID {
		// Someone else's deposit looks like a missing one.
		return nil, apperror.ErrUnknownReference()
	}

	return &ports.DepositStatus{
		Reference: txn.Reference,
		Status:    txn.Status,
		Amount:    txn.Amount,
		Currency:  domain.DefaultCurrency,
	}, nil
}
