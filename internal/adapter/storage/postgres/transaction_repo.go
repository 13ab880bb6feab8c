package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, reference, kind, amount, status, wallet_id, counterparty_wallet_id, correlation_ref, idempotency_key, created_at, updated_at`

const uniqueViolation = "23505"

// InsertIfAbsent inserts the transaction, treating a unique violation on the
// reference or idempotency key as an idempotent replay. It returns the stored
// row and whether this call created it.
func (r *TransactionRepo) InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error) {
	query := `INSERT INTO transactions (id, reference, kind, amount, status, wallet_id,
		counterparty_wallet_id, correlation_ref, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := r.pool.Exec(ctx, query,
		txn.ID, txn.Reference, txn.Kind, txn.Amount, txn.Status,
		txn.WalletID, txn.CounterpartyWalletID, txn.CorrelationRef, txn.IdempotencyKey,
	)
	if err == nil {
		return txn, true, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil, false, fmt.Errorf("insert transaction: %w", err)
	}

	// The row already exists. Which constraint fired decides the lookup:
	// a duplicate idempotency key points at a prior attempt under a
	// different reference.
	var existing *domain.Transaction
	if pgErr.ConstraintName == "transactions_idempotency_key_key" && txn.IdempotencyKey != nil {
		existing, err = r.getByIdempotencyKey(ctx, *txn.IdempotencyKey)
	} else {
		existing, err = r.GetByReference(ctx, txn.Reference)
	}
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("insert transaction: duplicate row vanished: %s", txn.Reference)
	}
	return existing, false, nil
}

// GetByReference fetches a transaction by its unique reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE reference = $1`, transactionColumns)

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

func (r *TransactionRepo) getByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE idempotency_key = $1`, transactionColumns)

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return t, nil
}

// TransitionStatus moves a transaction from one status to another as a
// compare-and-set. It reports false when the row was not in the expected
// status, which is how concurrent settlers lose the claim race.
func (r *TransactionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus) (bool, error) {
	query := `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionStatusInTx is TransitionStatus inside an open transaction.
func (r *TransactionRepo) TransitionStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.TransactionStatus) (bool, error) {
	query := `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := tx.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByWallet fetches a wallet's transactions, newest first. Zero filter
// fields match everything.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, filter ports.TransactionFilter, limit, offset int) ([]domain.Transaction, error) {
	where := "wallet_id = $1"
	args := []any{walletID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.Reference, &t.Kind, &t.Amount, &t.Status,
			&t.WalletID, &t.CounterpartyWalletID, &t.CorrelationRef, &t.IdempotencyKey,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// StatsByWallet aggregates a wallet's history in one pass. Amount totals
// only count settled rows; pending and failed money never happened.
func (r *TransactionRepo) StatsByWallet(ctx context.Context, walletID uuid.UUID) (*ports.TransactionStats, error) {
	query := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE kind = 'deposit'),
		COUNT(*) FILTER (WHERE kind IN ('transfer_out', 'transfer_in')),
		COALESCE(SUM(amount) FILTER (WHERE kind = 'deposit' AND status = 'success'), 0),
		COALESCE(SUM(amount) FILTER (WHERE kind = 'transfer_out' AND status = 'success'), 0),
		COUNT(*) FILTER (WHERE status = 'success'),
		COUNT(*) FILTER (WHERE status = 'failed'),
		COUNT(*) FILTER (WHERE status = 'pending')
		FROM transactions WHERE wallet_id = $1`

	stats := &ports.TransactionStats{}
	err := r.pool.QueryRow(ctx, query, walletID).Scan(
		&stats.TotalTransactions, &stats.TotalDeposits, &stats.TotalTransfers,
		&stats.TotalDepositAmount, &stats.TotalTransferAmount,
		&stats.Successful, &stats.Failed, &stats.Pending,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate transaction stats: %w", err)
	}
	return stats, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Reference, &t.Kind, &t.Amount, &t.Status,
		&t.WalletID, &t.CounterpartyWalletID, &t.CorrelationRef, &t.IdempotencyKey,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
