package settings

import (
	"context"
	"database/sql"
)

// PostgresProvider reads configuration from the platform_config table.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider creates a database-backed provider.
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Get(ctx context.Context, key, def string) string {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM platform_config WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		return def
	}
	return value
}

// Set upserts a configuration value.
func (p *PostgresProvider) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO platform_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`, key, value)
	return err
}
