package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testMaxActiveKeys = 5

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type apiKeyTestDeps struct {
	svc     *APIKeyServiceImpl
	keyRepo *mocks.MockAPIKeyRepository
	clock   *mocks.MockClock
	audit   *mocks.MockAuditService
	ctrl    *gomock.Controller
}

func setupAPIKeyService(t *testing.T) *apiKeyTestDeps {
	ctrl := gomock.NewController(t)
	d := &apiKeyTestDeps{
		keyRepo: mocks.NewMockAPIKeyRepository(ctrl),
		clock:   mocks.NewMockClock(ctrl),
		audit:   mocks.NewMockAuditService(ctrl),
		ctrl:    ctrl,
	}
	d.clock.EXPECT().Now().Return(testNow).AnyTimes()
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()
	d.svc = NewAPIKeyService(d.keyRepo, d.clock, d.audit, testMaxActiveKeys, zerolog.Nop())
	return d
}

func issueReq(userID uuid.UUID) ports.IssueKeyRequest {
	return ports.IssueKeyRequest{
		UserID:      userID,
		Name:        "ci-pipeline",
		Permissions: []domain.Permission{domain.PermissionTransfer, domain.PermissionRead},
		Expiry:      domain.Expiry1M,
	}
}

func assertAppCode(t *testing.T, err error, want *apperror.AppError) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want.Code, appErr.Code)
}

func TestAPIKeyService_Issue(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.keyRepo.EXPECT().CreateWithinCap(ctx, gomock.Any(), testMaxActiveKeys).DoAndReturn(
		func(_ context.Context, key *domain.APIKey, _ int) (bool, error) {
			assert.Equal(t, userID, key.UserID)
			assert.Equal(t, domain.KeyStatusActive, key.Status)
			assert.Equal(t, testNow.Add(30*24*time.Hour), key.ExpiresAt)
			assert.NotContains(t, key.SecretHash, "wl_")
			return true, nil
		})

	issued, err := d.svc.Issue(ctx, issueReq(userID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Key, "wl_"))
	assert.Equal(t, "ci-pipeline", issued.Name)
	assert.Equal(t, testNow.Add(30*24*time.Hour), issued.ExpiresAt)
}

func TestAPIKeyService_Issue_ActiveCeiling(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	// The repository reports the cap atomically with the insert attempt, so
	// two racing issues can never both land a sixth key.
	d.keyRepo.EXPECT().CreateWithinCap(ctx, gomock.Any(), testMaxActiveKeys).Return(false, nil)

	_, err := d.svc.Issue(ctx, issueReq(userID))
	assertAppCode(t, err, apperror.ErrTooManyActiveKeys(testMaxActiveKeys))
}

func TestAPIKeyService_Issue_InvalidInput(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	t.Run("missing name", func(t *testing.T) {
		req := issueReq(userID)
		req.Name = ""
		_, err := d.svc.Issue(ctx, req)
		assert.Error(t, err)
	})

	t.Run("no permissions", func(t *testing.T) {
		req := issueReq(userID)
		req.Permissions = nil
		_, err := d.svc.Issue(ctx, req)
		assertAppCode(t, err, apperror.ErrInvalidPermissions())
	})

	t.Run("unknown permission", func(t *testing.T) {
		req := issueReq(userID)
		req.Permissions = []domain.Permission{"admin"}
		_, err := d.svc.Issue(ctx, req)
		assertAppCode(t, err, apperror.ErrInvalidPermissions())
	})

	t.Run("duplicate permission", func(t *testing.T) {
		req := issueReq(userID)
		req.Permissions = []domain.Permission{domain.PermissionRead, domain.PermissionRead}
		_, err := d.svc.Issue(ctx, req)
		assertAppCode(t, err, apperror.ErrInvalidPermissions())
	})

	t.Run("bad expiry code", func(t *testing.T) {
		req := issueReq(userID)
		req.Expiry = "2W"
		_, err := d.svc.Issue(ctx, req)
		assertAppCode(t, err, apperror.ErrInvalidExpiry())
	})
}

func TestAPIKeyService_Rollover_ExpiredKey(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	expired := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        "ci-pipeline",
		Permissions: []domain.Permission{domain.PermissionRead},
		Status:      domain.KeyStatusActive,
		ExpiresAt:   testNow.Add(-time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, expired.ID).Return(expired, nil)
	d.keyRepo.EXPECT().CreateWithinCap(ctx, gomock.Any(), testMaxActiveKeys).DoAndReturn(
		func(_ context.Context, key *domain.APIKey, _ int) (bool, error) {
			require.NotNil(t, key.RolledFromID)
			assert.Equal(t, expired.ID, *key.RolledFromID)
			assert.Equal(t, expired.Name, key.Name)
			assert.Equal(t, expired.Permissions, key.Permissions)
			return true, nil
		})

	issued, err := d.svc.Rollover(ctx, userID, expired.ID, domain.Expiry1D)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Key, "wl_"))
	assert.Equal(t, testNow.Add(24*time.Hour), issued.ExpiresAt)
}

func TestAPIKeyService_Rollover_ActiveKeyRefused(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    domain.KeyStatusActive,
		ExpiresAt: testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	_, err := d.svc.Rollover(ctx, userID, key.ID, domain.Expiry1D)
	assertAppCode(t, err, apperror.ErrKeyNotExpired())
}

func TestAPIKeyService_Rollover_RevokedKeyRefused(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    domain.KeyStatusRevoked,
		ExpiresAt: testNow.Add(-time.Hour), // expired too; revocation still wins
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	_, err := d.svc.Rollover(ctx, userID, key.ID, domain.Expiry1D)
	assertAppCode(t, err, apperror.ErrKeyRevoked())
}

func TestAPIKeyService_Rollover_ForeignKeyHidden(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{ID: uuid.New(), UserID: uuid.New()}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	_, err := d.svc.Rollover(ctx, uuid.New(), key.ID, domain.Expiry1D)
	assertAppCode(t, err, apperror.ErrNotFound("API key"))
}

func TestAPIKeyService_Revoke(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    domain.KeyStatusActive,
		ExpiresAt: testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)
	d.keyRepo.EXPECT().SetStatus(ctx, key.ID, domain.KeyStatusRevoked).Return(nil)

	assert.NoError(t, d.svc.Revoke(ctx, userID, key.ID))
}

func TestAPIKeyService_Revoke_AlreadyRevokedIsNoOp(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	key := &domain.APIKey{ID: uuid.New(), UserID: userID, Status: domain.KeyStatusRevoked}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)
	// No SetStatus call.

	assert.NoError(t, d.svc.Revoke(ctx, userID, key.ID))
}

func TestAPIKeyService_Rename(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "ci-pipeline",
		Status:    domain.KeyStatusActive,
		ExpiresAt: testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)
	d.keyRepo.EXPECT().SetName(ctx, key.ID, "release-pipeline").Return(nil)

	assert.NoError(t, d.svc.Rename(ctx, userID, key.ID, "release-pipeline"))
}

func TestAPIKeyService_Rename_EmptyName(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	err := d.svc.Rename(context.Background(), uuid.New(), uuid.New(), "")
	assertAppCode(t, err, apperror.Validation("key name is required"))
}

func TestAPIKeyService_Rename_ForeignKeyHidden(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{ID: uuid.New(), UserID: uuid.New()}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	err := d.svc.Rename(ctx, uuid.New(), key.ID, "sneaky")
	assertAppCode(t, err, apperror.ErrNotFound("API key"))
}

func TestAPIKeyService_Validate(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	secret := domain.NewAPIKeySecret()
	key := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		SecretHash:  domain.HashAPIKeySecret(secret),
		Permissions: []domain.Permission{domain.PermissionDeposit},
		Status:      domain.KeyStatusActive,
		ExpiresAt:   testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetBySecretHash(ctx, key.SecretHash).Return(key, nil)
	d.keyRepo.EXPECT().TouchLastUsed(ctx, key.ID, testNow).Return(nil)

	identity, err := d.svc.Validate(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, key.UserID, identity.UserID)
	assert.Equal(t, key.ID, identity.KeyID)
	assert.Equal(t, key.Permissions, identity.Permissions)
}

func TestAPIKeyService_Validate_UnknownSecret(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.keyRepo.EXPECT().GetBySecretHash(ctx, gomock.Any()).Return(nil, nil)

	_, err := d.svc.Validate(ctx, "wl_not-a-real-key")
	assertAppCode(t, err, apperror.ErrInvalidKey())
}

func TestAPIKeyService_Validate_ExpiredKey(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{
		ID:        uuid.New(),
		Status:    domain.KeyStatusActive,
		ExpiresAt: testNow.Add(-time.Minute),
	}

	d.keyRepo.EXPECT().GetBySecretHash(ctx, gomock.Any()).Return(key, nil)

	_, err := d.svc.Validate(ctx, "wl_stale")
	assertAppCode(t, err, apperror.ErrKeyExpired())
}

func TestAPIKeyService_Validate_RevokedKey(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{
		ID:        uuid.New(),
		Status:    domain.KeyStatusRevoked,
		ExpiresAt: testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetBySecretHash(ctx, gomock.Any()).Return(key, nil)

	_, err := d.svc.Validate(ctx, "wl_revoked")
	assertAppCode(t, err, apperror.ErrKeyRevoked())
}

func TestAPIKeyService_Validate_TouchFailureIgnored(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Permissions: domain.AllPermissions(),
		Status:      domain.KeyStatusActive,
		ExpiresAt:   testNow.Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetBySecretHash(ctx, gomock.Any()).Return(key, nil)
	d.keyRepo.EXPECT().TouchLastUsed(ctx, key.ID, testNow).Return(context.DeadlineExceeded)

	identity, err := d.svc.Validate(ctx, "wl_whatever")
	require.NoError(t, err)
	assert.Equal(t, key.UserID, identity.UserID)
}
