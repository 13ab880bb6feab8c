package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReference_Format(t *testing.T) {
	ref := NewReference()
	assert.True(t, strings.HasPrefix(ref, "TRX_"))
	assert.Len(t, ref, 4+24)
	assert.Equal(t, strings.ToUpper(ref), ref)
	assert.NotEqual(t, ref, NewReference())
}

func TestNewWalletNumber_Format(t *testing.T) {
	n := NewWalletNumber()
	assert.Len(t, n, 15)
	assert.True(t, strings.HasPrefix(n, "45"))
	for _, c := range n {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestTransactionStatus_Transitions(t *testing.T) {
	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusSuccess))
	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusFailed))
	assert.False(t, TransactionStatusSuccess.CanTransitionTo(TransactionStatusFailed))
	assert.False(t, TransactionStatusFailed.CanTransitionTo(TransactionStatusSuccess))
	assert.False(t, TransactionStatusSuccess.CanTransitionTo(TransactionStatusPending))
}

func TestTransaction_Resolve(t *testing.T) {
	txn := &Transaction{Reference: NewReference(), Status: TransactionStatusPending}

	require.NoError(t, txn.Resolve(TransactionStatusSuccess))
	assert.Equal(t, TransactionStatusSuccess, txn.Status)
	assert.True(t, txn.IsTerminal())

	// Terminal rows are immutable.
	err := txn.Resolve(TransactionStatusFailed)
	require.Error(t, err)
	assert.Equal(t, TransactionStatusSuccess, txn.Status)
}

func TestExpiryCode_Duration(t *testing.T) {
	tests := []struct {
		code ExpiryCode
		want time.Duration
	}{
		{Expiry1H, time.Hour},
		{Expiry1D, 24 * time.Hour},
		{Expiry1M, 30 * 24 * time.Hour},
		{Expiry1Y, 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		d, ok := tt.code.Duration()
		require.True(t, ok, string(tt.code))
		assert.Equal(t, tt.want, d)
	}

	_, ok := ExpiryCode("2W").Duration()
	assert.False(t, ok)
}

func TestAPIKey_EffectiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	active := &APIKey{Status: KeyStatusActive, ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, KeyActive, active.EffectiveStatus(now))

	expired := &APIKey{Status: KeyStatusActive, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, KeyExpired, expired.EffectiveStatus(now))

	// Revocation wins even past the expiry time.
	revoked := &APIKey{Status: KeyStatusRevoked, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, KeyRevoked, revoked.EffectiveStatus(now))
}

func TestAPIKey_HasPermission(t *testing.T) {
	k := &APIKey{Permissions: []Permission{PermissionRead, PermissionTransfer}}
	assert.True(t, k.HasPermission(PermissionRead))
	assert.True(t, k.HasPermission(PermissionTransfer))
	assert.False(t, k.HasPermission(PermissionDeposit))
}

func TestNewAPIKeySecret_AndHash(t *testing.T) {
	secret := NewAPIKeySecret()
	assert.True(t, strings.HasPrefix(secret, "wl_"))
	assert.Len(t, secret, 3+43)

	h1 := HashAPIKeySecret(secret)
	h2 := HashAPIKeySecret(secret)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashAPIKeySecret(NewAPIKeySecret()))
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission(PermissionRead))
	assert.True(t, ValidPermission(PermissionDeposit))
	assert.True(t, ValidPermission(PermissionTransfer))
	assert.False(t, ValidPermission(Permission("admin")))
}
