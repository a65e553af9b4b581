package webhooks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// PostgresStore persists subscriptions in the webhook_subscriptions table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subColumns = `id, user_id, url, secret, events, active,
	created_at, last_success, COALESCE(last_error, '')`

func scanSub(row interface{ Scan(...any) error }) (*Subscription, error) {
	s := &Subscription{}
	var events []string
	err := row.Scan(&s.ID, &s.UserID, &s.URL, &s.Secret, pq.Array(&events),
		&s.Active, &s.CreatedAt, &s.LastSuccess, &s.LastError)
	if err != nil {
		return nil, err
	}
	s.Events = events
	return s, nil
}

func (p *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, user_id, url, secret, events, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sub.ID, sub.UserID, sub.URL, sub.Secret, pq.Array(sub.Events), sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+subColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	s, err := scanSub(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "webhook not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook subscription: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+subColumns+` FROM webhook_subscriptions
		WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET url = $1, events = $2, active = $3, last_success = $4, last_error = NULLIF($5, '')
		WHERE id = $6
	`, sub.URL, pq.Array(sub.Events), sub.Active, sub.LastSuccess, sub.LastError, sub.ID)
	if err != nil {
		return fmt.Errorf("update webhook subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.CodeNotFound, "webhook not found")
	}
	return nil
}
