package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionKind represents the kind of money movement.
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindTransferOut TransactionKind = "transfer_out"
	TransactionKindTransferIn  TransactionKind = "transfer_in"
)

// TransactionStatus represents the lifecycle state of a transaction.
// Transitions are one-directional: pending -> success | failed.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// CanTransitionTo reports whether next is a legal successor of s.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending &&
		(next == TransactionStatusSuccess || next == TransactionStatusFailed)
}

// Transaction is a ledger entry. Reference is globally unique and is the
// idempotency anchor for deposits; IdempotencyKey deduplicates client
// transfer requests. The two legs of a transfer share CorrelationRef.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	Reference            string            `json:"reference"`
	Kind                 TransactionKind   `json:"kind"`
	Amount               int64             `json:"amount"`
	Status               TransactionStatus `json:"status"`
	WalletID             uuid.UUID         `json:"wallet_id"`
	CounterpartyWalletID *uuid.UUID        `json:"counterparty_wallet_id,omitempty"`
	CorrelationRef       *string           `json:"correlation_ref,omitempty"`
	IdempotencyKey       *string           `json:"-"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}

// Resolve moves the transaction to a terminal state. Terminal rows are
// immutable; resolving one again is an error.
func (t *Transaction) Resolve(next TransactionStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", t.Status, next, t.Reference)
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// NewReference generates a globally unique transaction reference,
// format TRX_<24 uppercase hex chars>.
func NewReference() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reference entropy: %v", err))
	}
	return "TRX_" + strings.ToUpper(hex.EncodeToString(b))
}
