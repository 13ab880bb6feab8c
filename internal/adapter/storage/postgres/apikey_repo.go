package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

const apiKeyColumns = `id, user_id, name, prefix, secret_hash, permissions, status, expires_at, rolled_from_id, last_used_at, created_at`

// CreateWithinCap inserts a new API key unless the owner already holds
// maxActive live keys. The plaintext secret never reaches this layer, only
// its digest.
//
// The count and insert run in one transaction behind a per-owner advisory
// lock, so two concurrent issues serialize instead of both reading the same
// count and overshooting the cap.
func (r *APIKeyRepo) CreateWithinCap(ctx context.Context, key *domain.APIKey, maxActive int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin api key insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lock := `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`
	if _, err := tx.Exec(ctx, lock, key.UserID); err != nil {
		return false, fmt.Errorf("lock api key owner: %w", err)
	}

	count := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND status = $2 AND expires_at > $3`
	var active int
	if err := tx.QueryRow(ctx, count, key.UserID, domain.KeyStatusActive, key.CreatedAt).Scan(&active); err != nil {
		return false, fmt.Errorf("count active api keys: %w", err)
	}
	if active >= maxActive {
		return false, nil
	}

	insert := `INSERT INTO api_keys (id, user_id, name, prefix, secret_hash, permissions, status, expires_at, rolled_from_id, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.Exec(ctx, insert,
		key.ID, key.UserID, key.Name, key.Prefix, key.SecretHash,
		permissionsToStrings(key.Permissions), key.Status, key.ExpiresAt,
		key.RolledFromID, key.LastUsedAt, key.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert api key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit api key insert: %w", err)
	}
	return true, nil
}

// GetByID fetches an API key by UUID.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = $1`, apiKeyColumns)

	k, err := scanAPIKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by id: %w", err)
	}
	return k, nil
}

// GetBySecretHash fetches an API key by the digest of its plaintext secret.
func (r *APIKeyRepo) GetBySecretHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE secret_hash = $1`, apiKeyColumns)

	k, err := scanAPIKey(r.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}

// ListByUser fetches all of a user's keys, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, apiKeyColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var perms []string
		err := rows.Scan(
			&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.SecretHash,
			&perms, &k.Status, &k.ExpiresAt, &k.RolledFromID,
			&k.LastUsedAt, &k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		k.Permissions = stringsToPermissions(perms)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return keys, nil
}

// SetStatus updates a key's stored status.
func (r *APIKeyRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.KeyStatus) error {
	query := `UPDATE api_keys SET status = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("set api key status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

// SetName updates a key's display name.
func (r *APIKeyRepo) SetName(ctx context.Context, id uuid.UUID, name string) error {
	query := `UPDATE api_keys SET name = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, name, id)
	if err != nil {
		return fmt.Errorf("rename api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

// TouchLastUsed records when the key last authenticated a request.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, when, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// scanAPIKey is a helper to scan a single row into an APIKey.
func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []string
	err := row.Scan(
		&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.SecretHash,
		&perms, &k.Status, &k.ExpiresAt, &k.RolledFromID,
		&k.LastUsedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	k.Permissions = stringsToPermissions(perms)
	return k, nil
}

func permissionsToStrings(perms []domain.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func stringsToPermissions(raw []string) []domain.Permission {
	out := make([]domain.Permission, len(raw))
	for i, s := range raw {
		out[i] = domain.Permission(s)
	}
	return out
}
