// Package giftcards issues and redeems stored-value gift cards. Redemption
// claims the card atomically, so two racing redemptions of the same code
// resolve to exactly one wallet credit.
package giftcards

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/money"
)

// Card statuses.
const (
	StatusActive      = "active"
	StatusRedeemed    = "redeemed"
	StatusDeactivated = "deactivated"
)

// Card is one gift card.
type Card struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	AmountUSD  string     `json:"amountUsd"`
	Status     string     `json:"status"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	RedeemedBy string     `json:"redeemedBy,omitempty"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Store persists gift cards.
//
// Redeem must atomically claim the card for userID: a missing, already
// redeemed, or deactivated code is NOT_FOUND (one answer, so the endpoint
// cannot be used to probe valid codes); an expired card is a validation
// error.
type Store interface {
	Create(ctx context.Context, c *Card) error
	Get(ctx context.Context, id string) (*Card, error)
	Redeem(ctx context.Context, code, userID string) (*Card, error)
	Deactivate(ctx context.Context, id string) (*Card, error)
	List(ctx context.Context, limit, offset int) ([]*Card, error)
}

// Service wraps the store and credits redemptions to the wallet. The claim
// and the credit run through runner as one unit of work.
type Service struct {
	store  Store
	wallet *ledger.Service
	runner database.Runner
}

// NewService creates a gift card service.
func NewService(store Store, wallet *ledger.Service, runner database.Runner) *Service {
	return &Service{store: store, wallet: wallet, runner: runner}
}

// Create issues a new card. expiresAt may be nil for no expiry.
func (s *Service) Create(ctx context.Context, createdBy, amount string, expiresAt *time.Time) (*Card, error) {
	if _, ok := money.ParsePositive(amount); !ok {
		return nil, apperrors.Newf(apperrors.CodeValidation, "invalid amount %q", amount)
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, apperrors.New(apperrors.CodeValidation, "expiry is in the past")
	}

	c := &Card{
		ID:        idgen.WithPrefix("gc_"),
		Code:      newCode(),
		AmountUSD: amount,
		Status:    StatusActive,
		CreatedBy: createdBy,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Redeem claims the card for userID and credits its value to the user's
// available balance.
func (s *Service) Redeem(ctx context.Context, userID, code string) (*Card, error) {
	if code == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "code is required")
	}

	var c *Card
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.store.Redeem(ctx, code, userID)
		if err != nil {
			return err
		}
		if _, err := s.wallet.RedeemGiftCard(ctx, userID, c.AmountUSD, c.ID); err != nil {
			logging.L(ctx).Error("credit gift card redemption",
				"cardId", c.ID, "userId", userID, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a card by ID.
func (s *Service) Get(ctx context.Context, id string) (*Card, error) {
	return s.store.Get(ctx, id)
}

// Deactivate takes an active card out of circulation.
func (s *Service) Deactivate(ctx context.Context, id string) (*Card, error) {
	return s.store.Deactivate(ctx, id)
}

// List returns cards, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Card, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, limit, offset)
}

// newCode generates a card code like GC-7F3A-91CE-04BD.
func newCode() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("GC-%02X%02X-%02X%02X-%02X%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
