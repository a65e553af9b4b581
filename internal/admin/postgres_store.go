package admin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/database"
)

// PostgresAuditStore persists admin actions in the admin_actions table.
// The table carries a partial unique index on non-null idempotency keys; a
// violation maps to CONFLICT so a double-submitted override loses cleanly
// even when two requests race past the pre-check, and the losing insert
// rolls back the whole override with it.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates a PostgreSQL-backed audit store.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (p *PostgresAuditStore) Record(ctx context.Context, a *Action) error {
	_, err := database.From(ctx, p.db).ExecContext(ctx, `
		INSERT INTO admin_actions (
			id, admin_id, action_type, target_type, target_id, amount, reason,
			before_state, after_state, confirmation, idempotency_key,
			ip, user_agent, created_at
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''),$14)
	`,
		a.ID, a.AdminID, a.Type, a.TargetType, a.TargetID, a.Amount, a.Reason,
		[]byte(a.Before), []byte(a.After), a.Confirmation, a.IdempotencyKey,
		a.IP, a.UserAgent, a.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return apperrors.New(apperrors.CodeConflict, "idempotency key already used")
	}
	if err != nil {
		return fmt.Errorf("insert admin action: %w", err)
	}
	return nil
}

func (p *PostgresAuditStore) GetByIdempotencyKey(ctx context.Context, key string) (*Action, error) {
	if key == "" {
		return nil, nil
	}
	row := database.From(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM admin_actions WHERE idempotency_key = $1`, key)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load admin action: %w", err)
	}
	return a, nil
}

const actionColumns = `
	id, admin_id, action_type, target_type, target_id,
	COALESCE(amount::TEXT, ''), reason,
	COALESCE(before_state, 'null'), COALESCE(after_state, 'null'),
	confirmation, COALESCE(idempotency_key, ''),
	COALESCE(ip, ''), COALESCE(user_agent, ''), created_at`

func scanAction(row interface{ Scan(...any) error }) (*Action, error) {
	a := &Action{}
	var before, after []byte
	err := row.Scan(&a.ID, &a.AdminID, &a.Type, &a.TargetType, &a.TargetID,
		&a.Amount, &a.Reason, &before, &after,
		&a.Confirmation, &a.IdempotencyKey, &a.IP, &a.UserAgent, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Before = before
	a.After = after
	return a, nil
}

func (p *PostgresAuditStore) List(ctx context.Context, f AuditFilter) ([]*Action, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		where []string
		args  []any
	)
	if f.AdminID != "" {
		args = append(args, f.AdminID)
		where = append(where, fmt.Sprintf("admin_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if f.TargetID != "" {
		args = append(args, f.TargetID)
		where = append(where, fmt.Sprintf("target_id = $%d", len(args)))
	}

	q := `SELECT ` + actionColumns + ` FROM admin_actions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list admin actions: %w", err)
	}
	defer rows.Close()

	var result []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin action: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
