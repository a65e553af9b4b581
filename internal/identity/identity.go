// Package identity is the read-mostly collaborator holding account data the
// settlement core needs: roles, seller level, KYC status, lifetime sales
// volume, and password hashes for admin step-up confirmation.
//
// The settlement subsystem owns none of this; it references users by ID and
// mutates only the seller stats it is responsible for.
package identity

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/money"
)

// KYC review states.
const (
	KYCNone     = "none"
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

// Account statuses.
const (
	StatusActive = "active"
	StatusBanned = "banned"
)

// User is an account as seen by the settlement core.
type User struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Email         string             `json:"email"`
	Roles         []authz.Role       `json:"roles"`
	Grants        []authz.Permission `json:"grants,omitempty"`
	Status        string             `json:"status"`
	SellerLevel   string             `json:"sellerLevel"`
	KYCStatus     string             `json:"kycStatus"`
	SalesVolume   string             `json:"salesVolumeUsd"` // lifetime completed order volume
	PasswordHash  string             `json:"-"`
	ProfileLocked bool               `json:"profileLocked"`
	AdminDisabled bool               `json:"adminDisabled"` // admin role present but switched off
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Actor converts the user to an authz principal.
func (u *User) Actor() authz.Actor {
	roles := u.Roles
	if u.AdminDisabled {
		filtered := make([]authz.Role, 0, len(roles))
		for _, r := range roles {
			if r != authz.RoleAdmin && r != authz.RoleSuperAdmin {
				filtered = append(filtered, r)
			}
		}
		roles = filtered
	}
	return authz.Actor{UserID: u.ID, Roles: roles, Grants: authz.NewSet(u.Grants...)}
}

// Store persists users.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

// Service wraps the store with the operations the settlement core uses.
type Service struct {
	store Store
}

// NewService creates an identity service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns a user or NOT_FOUND.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.Get(ctx, id)
}

// VerifyPassword checks a plaintext password against the user's bcrypt
// hash. Used for admin step-up confirmation.
func (s *Service) VerifyPassword(ctx context.Context, userID, password string) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return apperrors.New(apperrors.CodeAuthorization, "invalid password")
	}
	return nil
}

// Authenticate resolves a username/password pair to a user. Banned
// accounts cannot log in. The failure message never says which of the
// two inputs was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid credentials")
	}
	if u.Status == StatusBanned {
		return nil, apperrors.New(apperrors.CodeAuthorization, "account is banned")
	}
	return u, nil
}

// HashPassword returns a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// AddSalesVolume adds a completed order's amount to the seller's lifetime
// volume and re-derives the seller level. levelFor maps cumulative volume
// to a tier name; the fee policy owns the thresholds.
func (s *Service) AddSalesVolume(ctx context.Context, sellerID, amount string, levelFor func(volume string) string) error {
	u, err := s.store.Get(ctx, sellerID)
	if err != nil {
		return err
	}
	u.SalesVolume = money.Add(u.SalesVolume, amount)
	u.SellerLevel = levelFor(u.SalesVolume)
	u.UpdatedAt = time.Now()
	return s.store.Update(ctx, u)
}

// Store mutations used by admin overrides.

func (s *Service) SetStatus(ctx context.Context, userID, status string) (*User, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	return u, s.store.Update(ctx, u)
}

func (s *Service) SetRoles(ctx context.Context, userID string, roles []authz.Role) (*User, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	u.UpdatedAt = time.Now()
	return u, s.store.Update(ctx, u)
}

func (s *Service) SetAdminDisabled(ctx context.Context, userID string, disabled bool) (*User, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.AdminDisabled = disabled
	u.UpdatedAt = time.Now()
	return u, s.store.Update(ctx, u)
}

func (s *Service) UnlockProfile(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.ProfileLocked = false
	u.UpdatedAt = time.Now()
	return u, s.store.Update(ctx, u)
}

// CreateAdmin creates a new account holding the admin role.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string, grants []authz.Permission) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:     username,
		Email:        email,
		Roles:        []authz.Role{authz.RoleAdmin},
		Grants:       grants,
		Status:       StatusActive,
		SellerLevel:  "bronze",
		KYCStatus:    KYCNone,
		SalesVolume:  "0.00",
		PasswordHash: hash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
