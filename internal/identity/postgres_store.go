package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/idgen"
)

// PostgresStore persists users in the users table. Roles and grants are
// TEXT[] columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, username, email, roles, grants, status, seller_level,
	kyc_status, sales_volume_usd::TEXT, password_hash, profile_locked, admin_disabled,
	created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return p.getBy(ctx, "id", id)
}

func (p *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return p.getBy(ctx, "username", username)
}

func (p *PostgresStore) getBy(ctx context.Context, column, value string) (*User, error) {
	u := &User{}
	var roles, grants []string
	err := database.From(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	).Scan(
		&u.ID, &u.Username, &u.Email, pq.Array(&roles), pq.Array(&grants),
		&u.Status, &u.SellerLevel, &u.KYCStatus, &u.SalesVolume, &u.PasswordHash,
		&u.ProfileLocked, &u.AdminDisabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Roles = toRoles(roles)
	u.Grants = toPermissions(grants)
	return u, nil
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = idgen.WithPrefix("usr_")
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	_, err := database.From(ctx, p.db).ExecContext(ctx, `
		INSERT INTO users (id, username, email, roles, grants, status, seller_level,
			kyc_status, sales_volume_usd, password_hash, profile_locked, admin_disabled,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		u.ID, u.Username, u.Email, pq.Array(fromRoles(u.Roles)), pq.Array(fromPermissions(u.Grants)),
		u.Status, u.SellerLevel, u.KYCStatus, u.SalesVolume, u.PasswordHash,
		u.ProfileLocked, u.AdminDisabled, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.New(apperrors.CodeDuplicateEntry, "username already taken")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	res, err := database.From(ctx, p.db).ExecContext(ctx, `
		UPDATE users SET email = $1, roles = $2, grants = $3, status = $4,
			seller_level = $5, kyc_status = $6, sales_volume_usd = $7,
			password_hash = $8, profile_locked = $9, admin_disabled = $10,
			updated_at = $11
		WHERE id = $12
	`,
		u.Email, pq.Array(fromRoles(u.Roles)), pq.Array(fromPermissions(u.Grants)),
		u.Status, u.SellerLevel, u.KYCStatus, u.SalesVolume, u.PasswordHash,
		u.ProfileLocked, u.AdminDisabled, time.Now().UTC(), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return nil
}

func toRoles(vals []string) []authz.Role {
	out := make([]authz.Role, len(vals))
	for i, v := range vals {
		out[i] = authz.Role(v)
	}
	return out
}

func fromRoles(roles []authz.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func toPermissions(vals []string) []authz.Permission {
	out := make([]authz.Permission, len(vals))
	for i, v := range vals {
		out[i] = authz.Permission(v)
	}
	return out
}

func fromPermissions(perms []authz.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
