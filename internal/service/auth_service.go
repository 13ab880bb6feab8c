package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	audit ports.AuditService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
		audit:      audit,
		log:        log,
	}
}

// Register creates a user and provisions their wallet.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// Provision the wallet now so the first deposit or transfer does not
	// pay the creation cost. GetOrCreate keeps this race-safe anyway.
	if _, err := s.walletRepo.GetOrCreateByUserID(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to provision wallet at registration")
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &user.ID,
		Action:       domain.AuditActionRegister,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		CreatedAt:    time.Now().UTC(),
	})
	s.log.Info().Str("user_id", user.ID.String()).Msg("user registered")

	return user, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(err)
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	ok, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &user.ID,
		Action:       domain.AuditActionLogin,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		CreatedAt:    time.Now().UTC(),
	})

	return token, expiresAt, nil
}
