package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// PostgresStore persists tokens in the api_tokens table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, hash, user_id, name, created_at, last_used_at, expires_at, revoked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.Hash, t.UserID, t.Name, t.CreatedAt, t.LastUsedAt, t.ExpiresAt, t.Revoked)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	t := &Token{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, user_id, name, created_at, last_used_at, expires_at, revoked
		FROM api_tokens WHERE hash = $1
	`, hash).Scan(&t.ID, &t.Hash, &t.UserID, &t.Name, &t.CreatedAt, &t.LastUsedAt, &t.ExpiresAt, &t.Revoked)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, user_id, name, created_at, last_used_at, expires_at, revoked
		FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var result []*Token
	for rows.Next() {
		t := &Token{}
		if err := rows.Scan(&t.ID, &t.Hash, &t.UserID, &t.Name, &t.CreatedAt, &t.LastUsedAt, &t.ExpiresAt, &t.Revoked); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE api_tokens SET last_used_at = $1, expires_at = $2, revoked = $3 WHERE id = $4
	`, t.LastUsedAt, t.ExpiresAt, t.Revoked, t.ID)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	return nil
}
