package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// APIKeyServiceImpl implements ports.APIKeyService.
type APIKeyServiceImpl struct {
	keyRepo   ports.APIKeyRepository
	clock     ports.Clock
	audit     ports.AuditService
	maxActive int
	log       zerolog.Logger
}

// NewAPIKeyService creates a new APIKeyServiceImpl.
func NewAPIKeyService(
	keyRepo ports.APIKeyRepository,
	clock ports.Clock,
	audit ports.AuditService,
	maxActive int,
	log zerolog.Logger,
) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{
		keyRepo:   keyRepo,
		clock:     clock,
		audit:     audit,
		maxActive: maxActive,
		log:       log,
	}
}

// Issue mints a new API key. The plaintext secret appears once in the return
// value and is never persisted or logged.
func (s *APIKeyServiceImpl) Issue(ctx context.Context, req ports.IssueKeyRequest) (*ports.IssuedKey, error) {
	if req.Name == "" {
		return nil, apperror.Validation("key name is required")
	}
	if err := validatePermissions(req.Permissions); err != nil {
		return nil, err
	}
	lifetime, ok := req.Expiry.Duration()
	if !ok {
		return nil, apperror.ErrInvalidExpiry()
	}

	return s.mint(ctx, req.UserID, req.Name, req.Permissions, s.clock.Now(), lifetime, nil)
}

// Rollover reissues an expired key under a fresh secret. Only a key whose
// computed status is expired qualifies: active keys have nothing to roll,
// and revocation is final.
func (s *APIKeyServiceImpl) Rollover(ctx context.Context, userID, keyID uuid.UUID, expiry domain.ExpiryCode) (*ports.IssuedKey, error) {
	lifetime, ok := expiry.Duration()
	if !ok {
		return nil, apperror.ErrInvalidExpiry()
	}

	key, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch key.EffectiveStatus(now) {
	case domain.KeyRevoked:
		return nil, apperror.ErrKeyRevoked()
	case domain.KeyActive:
		return nil, apperror.ErrKeyNotExpired()
	}

	issued, err := s.mint(ctx, userID, key.Name, key.Permissions, now, lifetime, &key.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionKeyRolledOver,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
		CreatedAt:    now,
	})
	return issued, nil
}

// Revoke disables a key immediately. Revoking a key that is already revoked
// or expired is a no-op, so clients can retry safely.
func (s *APIKeyServiceImpl) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if key.Status == domain.KeyStatusRevoked {
		return nil
	}

	if err := s.keyRepo.SetStatus(ctx, keyID, domain.KeyStatusRevoked); err != nil {
		return apperror.InternalError(err)
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionKeyRevoked,
		ResourceType: "api_key",
		ResourceID:   keyID.String(),
		CreatedAt:    s.clock.Now(),
	})
	s.log.Info().Str("key_id", keyID.String()).Msg("api key revoked")
	return nil
}

// Validate resolves a presented plaintext key to its owner and permissions.
// Revocation and expiry are distinguishable failures: the caller's 403
// message says which one it was.
func (s *APIKeyServiceImpl) Validate(ctx context.Context, secret string) (*ports.KeyIdentity, error) {
	key, err := s.keyRepo.GetBySecretHash(ctx, domain.HashAPIKeySecret(secret))
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if key == nil {
		return nil, apperror.ErrInvalidKey()
	}

	now := s.clock.Now()
	switch key.EffectiveStatus(now) {
	case domain.KeyRevoked:
		return nil, apperror.ErrKeyRevoked()
	case domain.KeyExpired:
		return nil, apperror.ErrKeyExpired()
	}

	// Best effort; a failed touch must not fail the request.
	if err := s.keyRepo.TouchLastUsed(ctx, key.ID, now); err != nil {
		s.log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to touch api key")
	}

	return &ports.KeyIdentity{
		UserID:      key.UserID,
		KeyID:       key.ID,
		Permissions: key.Permissions,
	}, nil
}

// List returns all of the user's keys, live and dead.
func (s *APIKeyServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return keys, nil
}

// Rename relabels a key. Only the display name changes; secrets,
// permissions, and lifetime are fixed at issuance.
func (s *APIKeyServiceImpl) Rename(ctx context.Context, userID, keyID uuid.UUID, name string) error {
	if name == "" {
		return apperror.Validation("key name is required")
	}

	key, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := s.keyRepo.SetName(ctx, key.ID, name); err != nil {
		return apperror.InternalError(err)
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionKeyRenamed,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
		CreatedAt:    s.clock.Now(),
	})
	return nil
}

func (s *APIKeyServiceImpl) mint(ctx context.Context, userID uuid.UUID, name string, perms []domain.Permission, now time.Time, lifetime time.Duration, rolledFrom *uuid.UUID) (*ports.IssuedKey, error) {
	secret := domain.NewAPIKeySecret()
	key := &domain.APIKey{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		Prefix:       domain.KeyDisplayPrefix(secret),
		SecretHash:   domain.HashAPIKeySecret(secret),
		Permissions:  perms,
		Status:       domain.KeyStatusActive,
		ExpiresAt:    now.Add(lifetime),
		RolledFromID: rolledFrom,
		CreatedAt:    now,
	}

	// The cap check and insert are a single serialized repository
	// operation; a pre-count here would race concurrent issues.
	created, err := s.keyRepo.CreateWithinCap(ctx, key, s.maxActive)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create api key: %w", err))
	}
	if !created {
		return nil, apperror.ErrTooManyActiveKeys(s.maxActive)
	}

	metrics.APIKeysIssuedTotal.Inc()
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionKeyCreated,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
		CreatedAt:    now,
	})
	s.log.Info().
		Str("key_id", key.ID.String()).
		Str("prefix", key.Prefix).
		Time("expires_at", key.ExpiresAt).
		Msg("api key issued")

	return &ports.IssuedKey{
		ID:          key.ID,
		Key:         secret,
		Name:        key.Name,
		Permissions: key.Permissions,
		ExpiresAt:   key.ExpiresAt,
	}, nil
}

func (s *APIKeyServiceImpl) ownedKey(ctx context.Context, userID, keyID uuid.UUID) (*domain.APIKey, error) {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if key == nil || key.UserID != userID {
		// Hide other users' keys behind the same not-found.
		return nil, apperror.ErrNotFound("API key")
	}
	return key, nil
}

func validatePermissions(perms []domain.Permission) error {
	if len(perms) == 0 {
		return apperror.ErrInvalidPermissions()
	}
	seen := make(map[domain.Permission]bool, len(perms))
	for _, p := range perms {
		if !domain.ValidPermission(p) || seen[p] {
			return apperror.ErrInvalidPermissions()
		}
		seen[p] = true
	}
	return nil
}
