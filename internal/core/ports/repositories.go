package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository is the ledger store contract for wallets. Every balance
// write is either a version-checked atomic adjust or a row-locked in-tx
// credit; there is no unguarded UPDATE path.
type WalletRepository interface {
	// GetOrCreateByUserID returns the user's wallet, creating it with zero
	// balance atomically on first access.
	GetOrCreateByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByWalletNumber(ctx context.Context, number string) (*domain.Wallet, error)
	// AtomicAdjust applies delta to the wallet balance iff the stored version
	// equals expectedVersion, bumping the version. Returns the updated wallet,
	// or apperror.ErrVersionConflict when a concurrent writer won.
	AtomicAdjust(ctx context.Context, walletID uuid.UUID, delta int64, expectedVersion int64) (*domain.Wallet, error)
	// CreditInTx adds amount to the wallet inside an open database transaction,
	// taking the row lock. Used by the webhook claim-then-credit path.
	CreditInTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error
}

// TransactionFilter narrows a history query. Zero values mean no filter.
type TransactionFilter struct {
	Kind   domain.TransactionKind
	Status domain.TransactionStatus
}

// TransactionStats aggregates a wallet's transaction history.
type TransactionStats struct {
	TotalTransactions   int64 `json:"total_transactions"`
	TotalDeposits       int64 `json:"total_deposits"`
	TotalTransfers      int64 `json:"total_transfers"`
	TotalDepositAmount  int64 `json:"total_deposit_amount"`
	TotalTransferAmount int64 `json:"total_transfer_amount"`
	Successful          int64 `json:"successful_transactions"`
	Failed              int64 `json:"failed_transactions"`
	Pending             int64 `json:"pending_transactions"`
}

// TransactionRepository is the ledger store contract for transaction records.
type TransactionRepository interface {
	// InsertIfAbsent inserts the transaction. When a row already exists with
	// the same reference or idempotency key, it returns that row with
	// inserted=false. This is the single idempotency reservation point.
	InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	// TransitionStatus compare-and-sets status from -> to. Returns false when
	// the row was not in the expected state (a concurrent writer resolved it).
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus) (bool, error)
	// TransitionStatusInTx is TransitionStatus inside an open database
	// transaction, so a claim and its credit commit or roll back together.
	TransitionStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.TransactionStatus) (bool, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, filter TransactionFilter, limit, offset int) ([]domain.Transaction, error)
	StatsByWallet(ctx context.Context, walletID uuid.UUID) (*TransactionStats, error)
}

// APIKeyRepository defines persistence for delegated credentials.
type APIKeyRepository interface {
	// CreateWithinCap inserts the key only if the owner would still hold at
	// most maxActive keys that are neither revoked nor past expires_at as of
	// key.CreatedAt. The count and insert are serialized per owner, so two
	// concurrent issues cannot both slip under the cap. Returns false when
	// the cap is already reached.
	CreateWithinCap(ctx context.Context, key *domain.APIKey, maxActive int) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetBySecretHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.KeyStatus) error
	SetName(ctx context.Context, id uuid.UUID, name string) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error
}

// UserRepository defines persistence for principals.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
