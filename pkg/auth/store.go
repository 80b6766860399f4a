package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

const tokenColumns = `id, user_id, token_hash, token_prefix, name, description, expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason`

// PostgresTokenStore keeps API tokens in PostgreSQL
type PostgresTokenStore struct {
	db        *sql.DB
	generator *TokenGenerator
	now       func() time.Time
}

// NewPostgresTokenStore creates a token store
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, generator: NewTokenGenerator(), now: time.Now}
}

// CreateToken issues a token and returns its record and the plaintext,
// which is not recoverable afterwards
func (s *PostgresTokenStore) CreateToken(ctx context.Context, req CreateTokenRequest) (*APIToken, string, error) {
	if req.UserID <= 0 {
		return nil, "", errors.New("user id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, "", errors.New("token name is required")
	}

	token, tokenHash, tokenPrefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	t := &APIToken{
		UserID:      req.UserID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        req.Name,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   s.now().UTC(),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.UserID, t.TokenHash, t.TokenPrefix, t.Name, t.Description, t.ExpiresAt, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}
	return t, token, nil
}

// ValidateToken looks the token up by hash and checks it is usable. Every
// rejection is ErrInvalidToken.
func (s *PostgresTokenStore) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = $1`, s.generator.HashToken(token))
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	now := s.now().UTC()
	if !t.IsUsable(now) {
		return nil, ErrInvalidToken
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now, t.ID); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("token_id", t.ID).Warn("Failed to record token use")
	} else {
		t.LastUsedAt = &now
	}
	return t, nil
}

// RevokeToken marks a token revoked. Revoking twice is ErrNotFound.
func (s *PostgresTokenStore) RevokeToken(ctx context.Context, tokenID, revokedBy int64, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`, s.now().UTC(), revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("token %d: %w", tokenID, ErrNotFound)
	}
	return nil
}

// ListUserTokens lists a user's tokens, revoked ones included, newest first
func (s *PostgresTokenStore) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	list := []*APIToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*APIToken, error) {
	var t APIToken
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var revokedBy sql.NullInt64
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &t.Description,
		&expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt, &revokedBy, &t.RevokeReason,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		v := expiresAt.Time
		t.ExpiresAt = &v
	}
	if lastUsedAt.Valid {
		v := lastUsedAt.Time
		t.LastUsedAt = &v
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		t.RevokedAt = &v
	}
	if revokedBy.Valid {
		v := revokedBy.Int64
		t.RevokedBy = &v
	}
	return &t, nil
}

// Migrations returns the api_tokens schema
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					token_hash CHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP,
					revoked_by BIGINT,
					revoke_reason TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
	}
}

// RunMigrations applies the token schema
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return storage.Migrate(ctx, db, "auth", Migrations(), logger)
}
