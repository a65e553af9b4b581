package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/database"
)

// PostgresStore persists orders in the orders table. The shared order
// number counter lives in order_counter, a single-row table bumped under
// row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `
	id, order_number, listing_id, buyer_id, seller_id, game_id,
	COALESCE(platform_id, ''),
	amount::TEXT, fee_percent::TEXT, fee::TEXT, earnings::TEXT,
	status, COALESCE(completed_by, ''), COALESCE(dispute_reason, ''),
	COALESCE(resolution_note, ''), earnings_released,
	paid_at, delivered_at, completed_at, disputed_at, refunded_at,
	cancelled_at, seller_pending_release_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	var status string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.ListingID, &o.BuyerID, &o.SellerID, &o.GameID,
		&o.PlatformID,
		&o.AmountUSD, &o.FeePercent, &o.FeeUSD, &o.EarningsUSD,
		&status, &o.CompletedBy, &o.DisputeReason,
		&o.ResolutionNote, &o.EarningsReleased,
		&o.PaidAt, &o.DeliveredAt, &o.CompletedAt, &o.DisputedAt, &o.RefundedAt,
		&o.CancelledAt, &o.SellerPendingReleaseAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return o, nil
}

func (p *PostgresStore) Create(ctx context.Context, o *Order) error {
	_, err := database.From(ctx, p.db).ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, listing_id, buyer_id, seller_id, game_id, platform_id,
			amount, fee_percent, fee, earnings, status, earnings_released,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11,$12,FALSE,$13,$14)
	`,
		o.ID, o.OrderNumber, o.ListingID, o.BuyerID, o.SellerID, o.GameID, o.PlatformID,
		o.AmountUSD, o.FeePercent, o.FeeUSD, o.EarningsUSD, string(o.Status),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := database.From(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (p *PostgresStore) Update(ctx context.Context, o *Order, expect Status) error {
	res, err := database.From(ctx, p.db).ExecContext(ctx, `
		UPDATE orders SET
			status = $1, completed_by = NULLIF($2, ''),
			dispute_reason = NULLIF($3, ''), resolution_note = NULLIF($4, ''),
			paid_at = $5, delivered_at = $6, completed_at = $7,
			disputed_at = $8, refunded_at = $9, cancelled_at = $10,
			seller_pending_release_at = $11, updated_at = $12
		WHERE id = $13 AND status = $14
	`,
		string(o.Status), o.CompletedBy,
		o.DisputeReason, o.ResolutionNote,
		o.PaidAt, o.DeliveredAt, o.CompletedAt,
		o.DisputedAt, o.RefundedAt, o.CancelledAt,
		o.SellerPendingReleaseAt, o.UpdatedAt,
		o.ID, string(expect),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		cur, gerr := p.Get(ctx, o.ID)
		if gerr != nil {
			return gerr
		}
		return apperrors.Newf(apperrors.CodeInvalidTransition,
			"order moved from %s to %s concurrently", expect, cur.Status)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		where []string
		args  []any
	)
	if f.BuyerID != "" {
		args = append(args, f.BuyerID)
		where = append(where, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if f.SellerID != "" {
		args = append(args, f.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return p.queryOrders(ctx, q, args...)
}

func (p *PostgresStore) NextOrderNumber(ctx context.Context) (int64, error) {
	// Upsert so a fresh database needs no seed row.
	var n int64
	err := database.From(ctx, p.db).QueryRowContext(ctx, `
		INSERT INTO order_counter (id, value) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET value = order_counter.value + 1
		RETURNING value
	`, FirstOrderNumber).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bump order counter: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) DueForAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error) {
	return p.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND delivered_at < $2
		ORDER BY delivered_at
		LIMIT $3
	`, string(StatusDelivered), cutoff, limit)
}

func (p *PostgresStore) DueForEarningsRelease(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	return p.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND earnings_released = FALSE
		  AND seller_pending_release_at <= $2
		ORDER BY seller_pending_release_at
		LIMIT $3
	`, string(StatusCompleted), now, limit)
}

func (p *PostgresStore) MarkEarningsReleased(ctx context.Context, orderID string) (bool, error) {
	res, err := database.From(ctx, p.db).ExecContext(ctx, `
		UPDATE orders SET earnings_released = TRUE, updated_at = NOW()
		WHERE id = $1 AND earnings_released = FALSE
	`, orderID)
	if err != nil {
		return false, fmt.Errorf("mark earnings released: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark earnings released: %w", err)
	}
	return n > 0, nil
}

func (p *PostgresStore) queryOrders(ctx context.Context, q string, args ...any) ([]*Order, error) {
	rows, err := database.From(ctx, p.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
