package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the authenticated principal produced by the identity boundary.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Argon2id, never expose
	CreatedAt    time.Time `json:"created_at"`
}
