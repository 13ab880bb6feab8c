package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, wallet_number, balance, currency, version, created_at, updated_at`

// maxWalletNumberAttempts bounds retries when a freshly minted wallet
// number collides with an existing one.
const maxWalletNumberAttempts = 3

// GetOrCreateByUserID returns the user's wallet, creating it on first access.
// Concurrent first-access races resolve through the unique constraint on
// user_id: the loser's insert is a no-op and it reads the winner's row. A
// wallet_number collision mints a fresh number and retries.
func (r *WalletRepo) GetOrCreateByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	insert := fmt.Sprintf(`INSERT INTO wallets (id, user_id, wallet_number, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
		RETURNING %s`, walletColumns)

	var lastErr error
	for attempt := 0; attempt < maxWalletNumberAttempts; attempt++ {
		w, err := scanWallet(r.pool.QueryRow(ctx, insert, uuid.New(), userID, domain.NewWalletNumber(), domain.DefaultCurrency))
		if err == nil {
			return w, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			// ON CONFLICT on user_id swallowed the insert: the wallet
			// already exists.
			query := fmt.Sprintf(`SELECT %s FROM wallets WHERE user_id = $1`, walletColumns)
			w, err = scanWallet(r.pool.QueryRow(ctx, query, userID))
			if err != nil {
				return nil, fmt.Errorf("get wallet by user id: %w", err)
			}
			return w, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "wallets_wallet_number_key" {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return nil, fmt.Errorf("create wallet: wallet number collisions exhausted retries: %w", lastErr)
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE id = $1`, walletColumns)

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByWalletNumber fetches a wallet by its public wallet number.
func (r *WalletRepo) GetByWalletNumber(ctx context.Context, number string) (*domain.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE wallet_number = $1`, walletColumns)

	w, err := scanWallet(r.pool.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by number: %w", err)
	}
	return w, nil
}

// AtomicAdjust applies delta to the wallet balance only if the stored version
// still equals expectedVersion, bumping the version in the same statement.
// Zero rows updated means another writer committed first; the caller re-reads
// and retries. The amount check stays with the caller: a matching version
// guarantees the balance it validated against is still current.
func (r *WalletRepo) AtomicAdjust(ctx context.Context, walletID uuid.UUID, delta, expectedVersion int64) (*domain.Wallet, error) {
	query := fmt.Sprintf(`UPDATE wallets
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING %s`, walletColumns)

	w, err := scanWallet(r.pool.QueryRow(ctx, query, delta, walletID, expectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrVersionConflict()
		}
		return nil, fmt.Errorf("adjust wallet balance: %w", err)
	}
	return w, nil
}

// CreditInTx unconditionally credits a wallet inside an open transaction.
// Used by webhook settlement where the credit must commit atomically with the
// deposit's status transition.
func (r *WalletRepo) CreditInTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error {
	query := `UPDATE wallets
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, walletID)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// scanWallet is a helper to scan a single row into a Wallet.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.WalletNumber, &w.Balance,
		&w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}
