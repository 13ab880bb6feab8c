package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// Clock abstracts the time source so expiry and rollover eligibility are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT bearer token operations.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// IdempotencyCache is the Redis-layer replay check (fast path). The database
// unique constraint on transaction references remains authoritative.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PaymentProvider is the external payment collaborator boundary.
type PaymentProvider interface {
	// InitializeTransaction registers a checkout with the provider and
	// returns the hosted payment page URL. Amount is in minor units.
	InitializeTransaction(ctx context.Context, email string, amount int64, reference string) (*ProviderCheckout, error)
	// VerifyWebhookSignature checks the notification signature over the raw
	// request body. Constant-time.
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// ProviderCheckout is the result of a provider initialize call.
type ProviderCheckout struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// --- Service Ports (Business Logic) ---

// TransferService executes wallet-to-wallet balance movement.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	UserID                uuid.UUID
	RecipientWalletNumber string
	Amount                int64
	IdempotencyKey        string // empty = not deduplicated
}

// TransferResult is the externally visible outcome of a transfer.
type TransferResult struct {
	Reference string
	Status    domain.TransactionStatus
	Message   string
}

// DepositService reconciles provider-confirmed deposits.
type DepositService interface {
	InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64) (*DepositIntent, error)
	// HandleWebhook applies a provider notification exactly once. Replays of
	// resolved references are cheap no-ops.
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) error
	GetStatus(ctx context.Context, userID uuid.UUID, reference string) (*DepositStatus, error)
}

// DepositIntent is the result of initiating a deposit.
type DepositIntent struct {
	Reference        string
	AuthorizationURL string
}

// DepositStatus is a read-only projection of a deposit transaction.
type DepositStatus struct {
	Reference string
	Status    domain.TransactionStatus
	Amount    int64
	Currency  string
}

// WalletReadService serves read-only wallet projections.
type WalletReadService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*WalletBalance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter, page, pageSize int) ([]domain.Transaction, error)
	// GetTransaction resolves a reference to a transaction the caller's
	// wallet took part in. Foreign references come back as not found.
	GetTransaction(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*TransactionStats, error)
}

// WalletBalance is the balance projection.
type WalletBalance struct {
	WalletNumber string
	Balance      int64
	Currency     string
}

// APIKeyService manages delegated credentials.
type APIKeyService interface {
	Issue(ctx context.Context, req IssueKeyRequest) (*IssuedKey, error)
	Rollover(ctx context.Context, userID, keyID uuid.UUID, expiry domain.ExpiryCode) (*IssuedKey, error)
	Revoke(ctx context.Context, userID, keyID uuid.UUID) error
	// Validate resolves a presented plaintext key to its owning principal and
	// granted permissions, evaluating expiry against the injected clock.
	Validate(ctx context.Context, secret string) (*KeyIdentity, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	// Rename relabels a key. The secret, permissions, and lifetime are
	// immutable after issuance.
	Rename(ctx context.Context, userID, keyID uuid.UUID, name string) error
}

// IssueKeyRequest holds validated input for key issuance.
type IssueKeyRequest struct {
	UserID      uuid.UUID
	Name        string
	Permissions []domain.Permission
	Expiry      domain.ExpiryCode
}

// IssuedKey carries the plaintext secret, shown exactly once.
type IssuedKey struct {
	ID          uuid.UUID
	Key         string
	Name        string
	Permissions []domain.Permission
	ExpiresAt   time.Time
}

// KeyIdentity is the principal resolved from a valid API key.
type KeyIdentity struct {
	UserID      uuid.UUID
	KeyID       uuid.UUID
	Permissions []domain.Permission
}

// AuthService is the identity boundary: it produces authenticated principals.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
