package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister      AuditAction = "REGISTER"
	AuditActionLogin         AuditAction = "LOGIN"
	AuditActionDepositInit   AuditAction = "DEPOSIT_INITIATED"
	AuditActionDepositCredit AuditAction = "DEPOSIT_CREDITED"
	AuditActionTransfer      AuditAction = "TRANSFER"
	AuditActionKeyCreated    AuditAction = "KEY_CREATED"
	AuditActionKeyRevoked    AuditAction = "KEY_REVOKED"
	AuditActionKeyRolledOver AuditAction = "KEY_ROLLED_OVER"
	AuditActionKeyRenamed    AuditAction = "KEY_RENAMED"

	// AuditActionReconcileRequired marks money movement whose paper trail is
	// incomplete and needs operator attention.
	AuditActionReconcileRequired AuditAction = "RECONCILIATION_REQUIRED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
