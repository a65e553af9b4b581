package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ptzlabs/marketplace/internal/database"
)

// PostgresStore persists the ledger in the wallet_ledger table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes one entry. When the context carries an open transaction
// the entry enlists in it, so the caller's order or audit mutation and
// the ledger movement commit together.
func (p *PostgresStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	if tx, ok := database.TxFrom(ctx); ok {
		return p.AppendTx(ctx, tx, e)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	out, err := p.AppendTx(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return out, nil
}

// AppendTx appends inside the caller's transaction, so an order state change
// and its ledger movements commit or roll back together.
//
// An advisory lock on the user ID serializes concurrent appends. A row lock
// on the latest entry would not cover two concurrent first entries for the
// same user.
func (p *PostgresStore) AppendTx(ctx context.Context, tx *sql.Tx, e *Entry) (*Entry, error) {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('wallet:' || $1, 0))`, e.UserID,
	); err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", e.UserID, err)
	}

	prev := zeroBalance(e.UserID)
	err := tx.QueryRowContext(ctx, `
		SELECT available::TEXT, pending::TEXT, frozen::TEXT
		FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, e.UserID).Scan(&prev.Available, &prev.Pending, &prev.Frozen)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	if err := applySnapshots(prev, e); err != nil {
		return nil, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger (
			id, user_id, entry_type, amount,
			delta_available, delta_pending, delta_frozen,
			available, pending, frozen,
			reference_type, reference_id, description, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		e.ID, e.UserID, string(e.Type), e.Amount,
		e.DeltaAvailable, e.DeltaPending, e.DeltaFrozen,
		e.Available, e.Pending, e.Frozen,
		nullIfEmpty(e.ReferenceType), nullIfEmpty(e.ReferenceID), nullIfEmpty(e.Description), e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return e, nil
}

func (p *PostgresStore) Balance(ctx context.Context, userID string) (*Balance, error) {
	bal := zeroBalance(userID)
	err := database.From(ctx, p.db).QueryRowContext(ctx, `
		SELECT available::TEXT, pending::TEXT, frozen::TEXT, created_at
		FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID).Scan(&bal.Available, &bal.Pending, &bal.Frozen, &bal.UpdatedAt)
	if err == sql.ErrNoRows {
		return bal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return bal, nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	if f.ReferenceID != "" {
		args = append(args, f.ReferenceID)
		where = append(where, fmt.Sprintf("reference_id = $%d", len(args)))
	}
	q := `
		SELECT id, user_id, entry_type, amount::TEXT,
		       delta_available::TEXT, delta_pending::TEXT, delta_frozen::TEXT,
		       available::TEXT, pending::TEXT, frozen::TEXT,
		       COALESCE(reference_type, ''), COALESCE(reference_id, ''),
		       COALESCE(description, ''), created_at
		FROM wallet_ledger`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := database.From(ctx, p.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		var typ string
		if err := rows.Scan(
			&e.ID, &e.UserID, &typ, &e.Amount,
			&e.DeltaAvailable, &e.DeltaPending, &e.DeltaFrozen,
			&e.Available, &e.Pending, &e.Frozen,
			&e.ReferenceType, &e.ReferenceID, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = EntryType(typ)
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
