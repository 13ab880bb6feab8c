package dto

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DepositRequest is the request body for initiating a deposit.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// DepositResponse is the response body for an initiated deposit.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// DepositStatusResponse is the response for a deposit status query.
type DepositStatusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	RecipientWalletNumber string `json:"recipient_wallet_number" binding:"required,numeric,min=10,max=20"`
	Amount                int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey        string `json:"idempotency_key" binding:"omitempty,safe_id,max=64"`
}

// TransferResponse is the response body for a transfer.
type TransferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
	Currency     string `json:"currency"`
}

// TransactionResponse is one entry of the transaction history.
type TransactionResponse struct {
	Reference      string  `json:"reference"`
	Kind           string  `json:"kind"`
	Amount         int64   `json:"amount"`
	Status         string  `json:"status"`
	CorrelationRef *string `json:"correlation_ref,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// TransactionFilterQuery narrows transaction history by kind and/or status.
type TransactionFilterQuery struct {
	Kind   string `form:"kind" binding:"omitempty,oneof=deposit transfer_out transfer_in"`
	Status string `form:"status" binding:"omitempty,oneof=pending success failed"`
}

// TransactionListResponse wraps a page of transaction history.
type TransactionListResponse struct {
	Items    []TransactionResponse `json:"items"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// IssueKeyRequest is the request body for issuing an API key.
type IssueKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1,dive,oneof=deposit transfer read"`
	Expiry      string   `json:"expiry" binding:"required,oneof=1H 1D 1M 1Y"`
}

// RolloverKeyRequest is the request body for rolling over an expired key.
type RolloverKeyRequest struct {
	KeyID  string `json:"key_id" binding:"required,uuid"`
	Expiry string `json:"expiry" binding:"required,oneof=1H 1D 1M 1Y"`
}

// UpdateKeyRequest is the request body for renaming an API key.
type UpdateKeyRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// IssuedKeyResponse carries the plaintext key. It is returned exactly once;
// afterwards only the masked form is available.
type IssuedKeyResponse struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

// KeyListItem is one entry of the key listing. The secret never appears.
type KeyListItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	MaskedKey   string   `json:"masked_key"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
	ExpiresAt   string   `json:"expires_at"`
	LastUsedAt  *string  `json:"last_used_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
}
