package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken covers malformed, unknown, revoked and expired tokens
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrNotFound is returned when a token ID does not exist
	ErrNotFound = errors.New("token not found")
)

// APIToken is a stored token. The plaintext is never kept.
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// IsUsable reports whether the token is neither revoked nor expired at now
func (t *APIToken) IsUsable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// CreateTokenRequest describes a token to issue
type CreateTokenRequest struct {
	UserID      int64
	Name        string
	Description string
	ExpiresAt   *time.Time
}

// Validator resolves a presented token to its stored record
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*APIToken, error)
}
