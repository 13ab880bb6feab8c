package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory repositories implementing the storage ports with the same
// concurrency semantics as the postgres adapters: version-checked balance
// adjusts, unique reference/idempotency-key reservation, and status CAS.
// They let the full service + HTTP stack run without a database.

// --- Users ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return apperror.ErrEmailExists()
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *inMemoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Wallets ---

type inMemoryWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	byUser  map[uuid.UUID]uuid.UUID
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		byUser:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *inMemoryWalletRepo) GetOrCreateByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byUser[userID]; ok {
		cp := *r.wallets[id]
		return &cp, nil
	}
	w := &domain.Wallet{
		ID:           uuid.New(),
		UserID:       userID,
		WalletNumber: domain.NewWalletNumber(),
		Balance:      0,
		Currency:     domain.DefaultCurrency,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	r.wallets[w.ID] = w
	r.byUser[userID] = w.ID
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByWalletNumber(_ context.Context, number string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.WalletNumber == number {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) AtomicAdjust(_ context.Context, walletID uuid.UUID, delta int64, expectedVersion int64) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, apperror.ErrVersionConflict()
	}
	if w.Version != expectedVersion {
		return nil, apperror.ErrVersionConflict()
	}
	if w.Balance+delta < 0 {
		return nil, fmt.Errorf("balance check violated")
	}
	w.Balance += delta
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) CreditInTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance += amount
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Transactions ---

type inMemoryTransactionRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*domain.Transaction
	byRef  map[string]uuid.UUID
	byIdem map[string]uuid.UUID
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{
		byID:   make(map[uuid.UUID]*domain.Transaction),
		byRef:  make(map[string]uuid.UUID),
		byIdem: make(map[string]uuid.UUID),
	}
}

func (r *inMemoryTransactionRepo) InsertIfAbsent(_ context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[txn.Reference]; ok {
		cp := *r.byID[id]
		return &cp, false, nil
	}
	if txn.IdempotencyKey != nil {
		if id, ok := r.byIdem[*txn.IdempotencyKey]; ok {
			cp := *r.byID[id]
			return &cp, false, nil
		}
	}
	cp := *txn
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	r.byID[cp.ID] = &cp
	r.byRef[cp.Reference] = cp.ID
	if cp.IdempotencyKey != nil {
		r.byIdem[*cp.IdempotencyKey] = cp.ID
	}
	out := cp
	return &out, true, nil
}

func (r *inMemoryTransactionRepo) GetByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[reference]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *inMemoryTransactionRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.TransactionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *inMemoryTransactionRepo) TransitionStatusInTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, from, to domain.TransactionStatus) (bool, error) {
	return r.TransitionStatus(ctx, id, from, to)
}

func (r *inMemoryTransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID, filter ports.TransactionFilter, limit, offset int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Transaction
	for _, t := range r.byID {
		if t.WalletID != walletID {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.Transaction{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *inMemoryTransactionRepo) StatsByWallet(_ context.Context, walletID uuid.UUID) (*ports.TransactionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &ports.TransactionStats{}
	for _, t := range r.byID {
		if t.WalletID != walletID {
			continue
		}
		stats.TotalTransactions++
		switch t.Kind {
		case domain.TransactionKindDeposit:
			stats.TotalDeposits++
			if t.Status == domain.TransactionStatusSuccess {
				stats.TotalDepositAmount += t.Amount
			}
		case domain.TransactionKindTransferOut:
			stats.TotalTransfers++
			if t.Status == domain.TransactionStatusSuccess {
				stats.TotalTransferAmount += t.Amount
			}
		case domain.TransactionKindTransferIn:
			stats.TotalTransfers++
		}
		switch t.Status {
		case domain.TransactionStatusSuccess:
			stats.Successful++
		case domain.TransactionStatusFailed:
			stats.Failed++
		case domain.TransactionStatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

// --- API Keys ---

type inMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.APIKey
}

func newInMemoryAPIKeyRepo() *inMemoryAPIKeyRepo {
	return &inMemoryAPIKeyRepo{keys: make(map[uuid.UUID]*domain.APIKey)}
}

func (r *inMemoryAPIKeyRepo) CreateWithinCap(_ context.Context, key *domain.APIKey, maxActive int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := 0
	for _, k := range r.keys {
		if k.UserID == key.UserID && k.Status == domain.KeyStatusActive && k.ExpiresAt.After(key.CreatedAt) {
			active++
		}
	}
	if active >= maxActive {
		return false, nil
	}
	cp := *key
	r.keys[key.ID] = &cp
	return true, nil
}

func (r *inMemoryAPIKeyRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (r *inMemoryAPIKeyRepo) GetBySecretHash(_ context.Context, hash string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.SecretHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAPIKeyRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.APIKey
	for _, k := range r.keys {
		if k.UserID == userID {
			result = append(result, *k)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *inMemoryAPIKeyRepo) SetStatus(_ context.Context, id uuid.UUID, status domain.KeyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("key not found")
	}
	k.Status = status
	return nil
}

func (r *inMemoryAPIKeyRepo) SetName(_ context.Context, id uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("key not found")
	}
	k.Name = name
	return nil
}

func (r *inMemoryAPIKeyRepo) TouchLastUsed(_ context.Context, id uuid.UUID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("key not found")
	}
	k.LastUsedAt = &when
	return nil
}

// expire backdates a key's expiry, for rollover tests.
func (r *inMemoryAPIKeyRepo) expire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	}
}

// --- Audit ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

// --- Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
