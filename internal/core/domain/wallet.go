package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's balance in minor currency units (kobo).
// Balance mutations go through the ledger store's version-checked adjust;
// Version increments on every successful write.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	WalletNumber string    `json:"wallet_number"`
	Balance      int64     `json:"balance"`
	Currency     string    `json:"currency"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultCurrency is the only currency the ledger operates in.
const DefaultCurrency = "NGN"

// walletNumberPrefix identifies wallet numbers issued by this system.
const walletNumberPrefix = "45"

// NewWalletNumber generates a 15-digit wallet number starting with "45".
// Uniqueness is enforced by the ledger store; callers retry on collision.
func NewWalletNumber() string {
	digits := make([]byte, 13)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(fmt.Sprintf("wallet number entropy: %v", err))
		}
		digits[i] = byte('0' + n.Int64())
	}
	return walletNumberPrefix + string(digits)
}

// CanDebit reports whether the wallet holds at least amount.
func (w *Wallet) CanDebit(amount int64) bool {
	return w.Balance >= amount
}
