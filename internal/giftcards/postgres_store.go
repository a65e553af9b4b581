package giftcards

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/database"
)

// PostgresStore persists gift cards in the giftcards table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed gift card store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const cardColumns = `
	id, code, amount::TEXT, status, COALESCE(created_by, ''),
	COALESCE(redeemed_by, ''), redeemed_at, expires_at, created_at`

func scanCard(row interface{ Scan(...any) error }) (*Card, error) {
	c := &Card{}
	err := row.Scan(&c.ID, &c.Code, &c.AmountUSD, &c.Status, &c.CreatedBy,
		&c.RedeemedBy, &c.RedeemedAt, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgresStore) Create(ctx context.Context, c *Card) error {
	_, err := database.From(ctx, p.db).ExecContext(ctx, `
		INSERT INTO giftcards (id, code, amount, status, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, c.ID, c.Code, c.AmountUSD, c.Status, c.CreatedBy, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gift card: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Card, error) {
	row := database.From(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM giftcards WHERE id = $1`, id)
	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load gift card: %w", err)
	}
	return c, nil
}

// Redeem claims the card under a row lock. The FOR UPDATE select serializes
// two racing redemptions; the loser re-reads a non-active status and gets
// NOT_FOUND. When the context carries an open transaction the claim enlists
// in it, so the claim and the wallet credit commit together.
func (p *PostgresStore) Redeem(ctx context.Context, code, userID string) (*Card, error) {
	if tx, ok := database.TxFrom(ctx); ok {
		return p.redeemIn(ctx, tx, code, userID)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	c, err := p.redeemIn(ctx, tx, code, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redeem tx: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) redeemIn(ctx context.Context, tx *sql.Tx, code, userID string) (*Card, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM giftcards WHERE code = $1 FOR UPDATE`, code)
	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load gift card for redeem: %w", err)
	}
	if c.Status != StatusActive {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.New(apperrors.CodeValidation, "gift card has expired")
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE giftcards SET status = $1, redeemed_by = $2, redeemed_at = $3
		WHERE id = $4
	`, StatusRedeemed, userID, now, c.ID); err != nil {
		return nil, fmt.Errorf("claim gift card: %w", err)
	}

	c.Status = StatusRedeemed
	c.RedeemedBy = userID
	c.RedeemedAt = &now
	return c, nil
}

func (p *PostgresStore) Deactivate(ctx context.Context, id string) (*Card, error) {
	res, err := database.From(ctx, p.db).ExecContext(ctx, `
		UPDATE giftcards SET status = $1 WHERE id = $2 AND status = $3
	`, StatusDeactivated, id, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("deactivate gift card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("deactivate gift card: %w", err)
	}
	if n == 0 {
		c, gerr := p.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot deactivate a %s card", c.Status)
	}
	return p.Get(ctx, id)
}

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Card, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM giftcards
		ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list gift cards: %w", err)
	}
	defer rows.Close()

	var result []*Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gift card: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
