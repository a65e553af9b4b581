package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/database"
)

// Postgres reads the settlement view of the listings table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, id string) (*Listing, error) {
	l := &Listing{}
	err := database.From(ctx, p.db).QueryRowContext(ctx, `
		SELECT id, seller_id, game_id, COALESCE(platform_id, ''), price_usd::TEXT, status, COALESCE(note, '')
		FROM listings WHERE id = $1
	`, id).Scan(&l.ID, &l.SellerID, &l.GameID, &l.PlatformID, &l.PriceUSD, &l.Status, &l.Note)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (p *Postgres) SetStatus(ctx context.Context, id, status, note string) (*Listing, error) {
	_, err := database.From(ctx, p.db).ExecContext(ctx, `
		UPDATE listings SET status = $1, note = COALESCE(NULLIF($2, ''), note) WHERE id = $3
	`, status, note, id)
	if err != nil {
		return nil, fmt.Errorf("update listing status: %w", err)
	}
	return p.Get(ctx, id)
}
