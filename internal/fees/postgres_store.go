package fees

import (
	"context"
	"database/sql"
)

// PostgresRules reads the fee_rules table. NULL platform_id/seller_level
// columns represent "any" and match the empty string.
type PostgresRules struct {
	db *sql.DB
}

// NewPostgresRules creates a database-backed rule table.
func NewPostgresRules(db *sql.DB) *PostgresRules {
	return &PostgresRules{db: db}
}

func (p *PostgresRules) Lookup(ctx context.Context, gameID, platformID, sellerLevel string) (string, error) {
	var pct string
	err := p.db.QueryRowContext(ctx, `
		SELECT fee_percent::TEXT FROM fee_rules
		WHERE game_id = $1
		  AND COALESCE(platform_id, '')  = $2
		  AND COALESCE(seller_level, '') = $3
		LIMIT 1
	`, gameID, platformID, sellerLevel).Scan(&pct)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pct, nil
}
