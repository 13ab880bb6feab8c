package service

import (
	"context"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// walletReadService implements ports.WalletReadService.
type walletReadService struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
}

// NewWalletReadService creates a new read-only wallet projection service.
func NewWalletReadService(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository) ports.WalletReadService {
	return &walletReadService{
		walletRepo: walletRepo,
		txRepo:     txRepo,
	}
}

// GetBalance returns the caller's current balance.
func (s *walletReadService) GetBalance(ctx context.Context, userID uuid.UUID) (*ports.WalletBalance, error) {
	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	return &ports.WalletBalance{
		WalletNumber: wallet.WalletNumber,
		Balance:      wallet.Balance,
		Currency:     wallet.Currency,
	}, nil
}

// ListTransactions returns a page of the caller's transaction history,
// newest first, optionally narrowed by kind and status.
func (s *walletReadService) ListTransactions(ctx context.Context, userID uuid.UUID, filter ports.TransactionFilter, page, pageSize int) ([]domain.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	txns, err := s.txRepo.ListByWallet(ctx, wallet.ID, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return txns, nil
}

// GetTransaction resolves a reference to one of the caller's transactions.
// References owned by other wallets answer not-found, as if they never
// existed.
func (s *walletReadService) GetTransaction(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error) {
	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil || txn.WalletID != wallet.ID {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// GetStats aggregates the caller's transaction history.
func (s *walletReadService) GetStats(ctx context.Context, userID uuid.UUID) (*ports.TransactionStats, error) {
	wallet, err := s.walletRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	stats, err := s.txRepo.StatsByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return stats, nil
}
