package handler

import (
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeyHandler handles API key management endpoints. Key management is an
// owner-only surface: these routes accept bearer tokens, never API keys.
type KeyHandler struct {
	keySvc ports.APIKeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keySvc ports.APIKeyService) *KeyHandler {
	return &KeyHandler{keySvc: keySvc}
}

// Issue handles POST /api/v1/keys.
func (h *KeyHandler) Issue(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.IssueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	issued, err := h.keySvc.Issue(c.Request.Context(), ports.IssueKeyRequest{
		UserID:      userID,
		Name:        req.Name,
		Permissions: toPermissions(req.Permissions),
		Expiry:      domain.ExpiryCode(req.Expiry),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, issuedKeyResponse(issued))
}

// List handles GET /api/v1/keys.
func (h *KeyHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	keys, err := h.keySvc.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now().UTC()
	items := make([]dto.KeyListItem, 0, len(keys))
	for i := range keys {
		key := &keys[i]
		item := dto.KeyListItem{
			ID:          key.ID.String(),
			Name:        key.Name,
			MaskedKey:   key.Masked(),
			Permissions: fromPermissions(key.Permissions),
			Status:      string(key.EffectiveStatus(now)),
			ExpiresAt:   key.ExpiresAt.UTC().Format(time.RFC3339),
			CreatedAt:   key.CreatedAt.UTC().Format(time.RFC3339),
		}
		if key.LastUsedAt != nil {
			used := key.LastUsedAt.UTC().Format(time.RFC3339)
			item.LastUsedAt = &used
		}
		items = append(items, item)
	}

	response.OK(c, items)
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *KeyHandler) Rollover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.RolloverKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	keyID, err := uuid.Parse(req.KeyID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	issued, err := h.keySvc.Rollover(c.Request.Context(), userID, keyID, domain.ExpiryCode(req.Expiry))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, issuedKeyResponse(issued))
}

// Rename handles PATCH /api/v1/keys/:id. Only the display name is mutable;
// permissions and expiry are fixed at issue time.
func (h *KeyHandler) Rename(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	var req dto.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := h.keySvc.Rename(c.Request.Context(), userID, keyID, req.Name); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"updated": true})
}

// Revoke handles POST /api/v1/keys/:id/revoke.
func (h *KeyHandler) Revoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	if err := h.keySvc.Revoke(c.Request.Context(), userID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"revoked": true})
}

func issuedKeyResponse(issued *ports.IssuedKey) dto.IssuedKeyResponse {
	return dto.IssuedKeyResponse{
		ID:          issued.ID.String(),
		Key:         issued.Key,
		Name:        issued.Name,
		Permissions: fromPermissions(issued.Permissions),
		ExpiresAt:   issued.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func toPermissions(in []string) []domain.Permission {
	out := make([]domain.Permission, 0, len(in))
	for _, p := range in {
		out = append(out, domain.Permission(p))
	}
	return out
}

func fromPermissions(in []domain.Permission) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, string(p))
	}
	return out
}
