package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet & Ledger (WAL) ----

func ErrInsufficientBalance() *AppError {
	return New("WAL_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("WAL_002", "Invalid amount", http.StatusUnprocessableEntity)
}

func ErrRecipientNotFound() *AppError {
	return New("WAL_003", "Recipient wallet not found", http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New("WAL_004", "Cannot transfer to your own wallet", http.StatusUnprocessableEntity)
}

func ErrVersionConflict() *AppError {
	return New("WAL_005", "Concurrent balance update conflict, please retry", http.StatusConflict)
}

func ErrAmountLimitExceeded(limit int64) *AppError {
	return New("WAL_006", fmt.Sprintf("Amount exceeds the configured limit of %d", limit), http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New("WAL_007", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Webhook & Provider (PRV) ----

func ErrInvalidSignature() *AppError {
	return New("PRV_001", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrUnknownReference() *AppError {
	return New("PRV_002", "Unknown transaction reference", http.StatusNotFound)
}

func ErrProviderUnavailable(err error) *AppError {
	return Wrap("PRV_003", "Payment provider request failed", http.StatusBadGateway, err)
}

// ---- API Keys (KEY) ----

func ErrTooManyActiveKeys(max int) *AppError {
	return New("KEY_001", fmt.Sprintf("Maximum of %d active API keys allowed", max), http.StatusUnprocessableEntity)
}

func ErrInvalidKey() *AppError {
	return New("KEY_002", "Invalid API key", http.StatusUnauthorized)
}

func ErrKeyExpired() *AppError {
	return New("KEY_003", "API key has expired", http.StatusForbidden)
}

func ErrKeyRevoked() *AppError {
	return New("KEY_004", "API key has been revoked", http.StatusForbidden)
}

func ErrKeyNotExpired() *AppError {
	return New("KEY_005", "Only expired keys can be rolled over", http.StatusUnprocessableEntity)
}

func ErrInvalidExpiry() *AppError {
	return New("KEY_006", "Invalid expiry code, expected one of 1H, 1D, 1M, 1Y", http.StatusUnprocessableEntity)
}

func ErrInvalidPermissions() *AppError {
	return New("KEY_007", "Permissions must be a non-empty subset of deposit, transfer, read", http.StatusUnprocessableEntity)
}

// ---- Authentication & Authorization (SEC) ----

func ErrUnauthorized() *AppError {
	return New("SEC_001", "Missing or invalid credentials", http.StatusUnauthorized)
}

func ErrForbidden(permission string) *AppError {
	return New("SEC_002", fmt.Sprintf("Missing required permission: %s", permission), http.StatusForbidden)
}

func ErrInvalidCredentials() *AppError {
	return New("SEC_003", "Invalid email or password", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("SEC_004", "Email already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("SEC_005", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error carrying the binding message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusUnprocessableEntity)
}
