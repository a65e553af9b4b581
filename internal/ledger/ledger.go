// Package ledger is the append-only wallet ledger.
//
// A wallet has three buckets: available (spendable), pending (earnings held
// for seller protection), and frozen (admin holds). Every movement is an
// immutable Entry carrying signed per-bucket deltas and the bucket snapshots
// after applying them. The current balance is simply the snapshot on the
// latest entry, so replaying the ledger from zero always reproduces it.
package ledger

import (
	"context"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/money"
)

// EntryType classifies a ledger movement.
type EntryType string

const (
	TypeDeposit                EntryType = "deposit"
	TypeEscrowHold             EntryType = "escrow_hold"
	TypeEscrowReleasePending   EntryType = "escrow_release_pending"
	TypeEscrowReleaseAvailable EntryType = "escrow_release_available"
	TypeRefund                 EntryType = "refund"
	TypeWithdrawalRequest      EntryType = "withdrawal_request"
	TypeWithdrawalPaid         EntryType = "withdrawal_paid"
	TypeAdminCredit            EntryType = "admin_credit"
	TypeAdminDebit             EntryType = "admin_debit"
	TypeAdminFreezeHold        EntryType = "admin_freeze_hold"
	TypeAdminFreezeRelease     EntryType = "admin_freeze_release"
	TypeGiftcardRedeem         EntryType = "giftcard_redeem"
)

// Entry is one immutable ledger row. Deltas are signed; Amount is the
// positive magnitude of the operation. Available/Pending/Frozen are the
// wallet snapshots after the deltas were applied.
type Entry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Type           EntryType `json:"type"`
	Amount         string    `json:"amount"`
	DeltaAvailable string    `json:"deltaAvailable"`
	DeltaPending   string    `json:"deltaPending"`
	DeltaFrozen    string    `json:"deltaFrozen"`
	Available      string    `json:"available"`
	Pending        string    `json:"pending"`
	Frozen         string    `json:"frozen"`
	ReferenceType  string    `json:"referenceType,omitempty"` // order, withdrawal, giftcard, admin_action, deposit
	ReferenceID    string    `json:"referenceId,omitempty"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Balance is a wallet's current bucket snapshot.
type Balance struct {
	UserID    string    `json:"userId"`
	Available string    `json:"available"`
	Pending   string    `json:"pending"`
	Frozen    string    `json:"frozen"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Filter narrows a ledger listing. Zero values mean "any".
type Filter struct {
	UserID      string
	Type        EntryType
	ReferenceID string
	Limit       int
	Offset      int
}

// Store persists ledger entries. Append must serialize writes per user,
// compute the snapshots from the previous entry, and reject any entry that
// would drive a bucket negative.
type Store interface {
	Append(ctx context.Context, e *Entry) (*Entry, error)
	Balance(ctx context.Context, userID string) (*Balance, error)
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// applySnapshots fills e's snapshot fields from prev plus e's deltas.
// A negative available bucket means the user tried to spend money they do
// not have; a negative pending or frozen bucket can only come from a bug in
// the calling code, so it maps to the internal wallet error.
func applySnapshots(prev *Balance, e *Entry) error {
	e.Available = money.Add(prev.Available, e.DeltaAvailable)
	e.Pending = money.Add(prev.Pending, e.DeltaPending)
	e.Frozen = money.Add(prev.Frozen, e.DeltaFrozen)

	if money.IsNegative(e.Available) {
		return apperrors.Newf(apperrors.CodeInsufficientFunds,
			"available balance %s is less than %s", prev.Available, money.Neg(e.DeltaAvailable))
	}
	if money.IsNegative(e.Pending) {
		return apperrors.Newf(apperrors.CodeWallet,
			"pending balance would go negative: %s", e.Pending)
	}
	if money.IsNegative(e.Frozen) {
		return apperrors.Newf(apperrors.CodeWallet,
			"frozen balance would go negative: %s", e.Frozen)
	}
	return nil
}

func zeroBalance(userID string) *Balance {
	return &Balance{
		UserID:    userID,
		Available: "0.00",
		Pending:   "0.00",
		Frozen:    "0.00",
	}
}

// Service exposes the wallet operations. All amounts are positive decimal
// strings; the service derives the signed deltas for each entry type.
type Service struct {
	store Store
}

// NewService creates a ledger service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) append(ctx context.Context, userID string, t EntryType, amount, dAvail, dPend, dFroz, refType, refID, desc string) (*Entry, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if _, ok := money.ParsePositive(amount); !ok {
		return nil, apperrors.Newf(apperrors.CodeValidation, "invalid amount %q", amount)
	}

	e := &Entry{
		ID:             idgen.WithPrefix("ent_"),
		UserID:         userID,
		Type:           t,
		Amount:         amount,
		DeltaAvailable: dAvail,
		DeltaPending:   dPend,
		DeltaFrozen:    dFroz,
		ReferenceType:  refType,
		ReferenceID:    refID,
		Description:    desc,
		CreatedAt:      time.Now().UTC(),
	}
	out, err := s.store.Append(ctx, e)
	if err != nil {
		rejectionsTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	entriesTotal.WithLabelValues(string(t)).Inc()
	return out, nil
}

// Deposit credits available funds from an external payment.
func (s *Service) Deposit(ctx context.Context, userID, amount, refID, desc string) (*Entry, error) {
	return s.append(ctx, userID, TypeDeposit, amount, amount, "0", "0", "deposit", refID, desc)
}

// HoldEscrow debits the buyer's available funds into order escrow.
func (s *Service) HoldEscrow(ctx context.Context, buyerID, amount, orderID string) (*Entry, error) {
	return s.append(ctx, buyerID, TypeEscrowHold, amount, money.Neg(amount), "0", "0", "order", orderID, "escrow hold")
}

// RefundEscrow returns escrowed funds to the buyer's available bucket.
func (s *Service) RefundEscrow(ctx context.Context, buyerID, amount, orderID string) (*Entry, error) {
	return s.append(ctx, buyerID, TypeRefund, amount, amount, "0", "0", "order", orderID, "escrow refund")
}

// ReleaseToPending credits seller earnings into the pending bucket when an
// order completes. The seller protection window starts here.
func (s *Service) ReleaseToPending(ctx context.Context, sellerID, amount, orderID string) (*Entry, error) {
	return s.append(ctx, sellerID, TypeEscrowReleasePending, amount, "0", amount, "0", "order", orderID, "earnings pending release")
}

// ReleasePendingToAvailable moves matured earnings from pending to
// available once the protection window has passed.
func (s *Service) ReleasePendingToAvailable(ctx context.Context, sellerID, amount, orderID string) (*Entry, error) {
	return s.append(ctx, sellerID, TypeEscrowReleaseAvailable, amount, amount, money.Neg(amount), "0", "order", orderID, "earnings released")
}

// RequestWithdrawal debits available funds for a payout request.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, amount, withdrawalID string) (*Entry, error) {
	return s.append(ctx, userID, TypeWithdrawalRequest, amount, money.Neg(amount), "0", "0", "withdrawal", withdrawalID, "withdrawal requested")
}

// MarkWithdrawalPaid records the external payout. The funds already left
// the wallet at request time, so all deltas are zero.
func (s *Service) MarkWithdrawalPaid(ctx context.Context, userID, amount, withdrawalID string) (*Entry, error) {
	return s.append(ctx, userID, TypeWithdrawalPaid, amount, "0", "0", "0", "withdrawal", withdrawalID, "withdrawal paid")
}

// AdminCredit adds available funds by admin override.
func (s *Service) AdminCredit(ctx context.Context, userID, amount, actionID, reason string) (*Entry, error) {
	return s.append(ctx, userID, TypeAdminCredit, amount, amount, "0", "0", "admin_action", actionID, reason)
}

// AdminDebit removes available funds by admin override.
func (s *Service) AdminDebit(ctx context.Context, userID, amount, actionID, reason string) (*Entry, error) {
	return s.append(ctx, userID, TypeAdminDebit, amount, money.Neg(amount), "0", "0", "admin_action", actionID, reason)
}

// Freeze moves available funds into the frozen bucket.
func (s *Service) Freeze(ctx context.Context, userID, amount, actionID, reason string) (*Entry, error) {
	return s.append(ctx, userID, TypeAdminFreezeHold, amount, money.Neg(amount), "0", amount, "admin_action", actionID, reason)
}

// Unfreeze returns frozen funds to the available bucket.
func (s *Service) Unfreeze(ctx context.Context, userID, amount, actionID, reason string) (*Entry, error) {
	return s.append(ctx, userID, TypeAdminFreezeRelease, amount, amount, "0", money.Neg(amount), "admin_action", actionID, reason)
}

// RedeemGiftCard credits available funds from a gift card.
func (s *Service) RedeemGiftCard(ctx context.Context, userID, amount, cardID string) (*Entry, error) {
	return s.append(ctx, userID, TypeGiftcardRedeem, amount, amount, "0", "0", "giftcard", cardID, "gift card redeemed")
}

// Balance returns the wallet's current buckets.
func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	return s.store.Balance(ctx, userID)
}

// History returns a user's entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*Entry, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, Filter{UserID: userID, Limit: limit, Offset: offset})
}

// List returns entries across all users for admin review.
func (s *Service) List(ctx context.Context, f Filter) ([]*Entry, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}
