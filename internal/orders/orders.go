// Package orders owns the order lifecycle state machine and its coupling to
// the wallet ledger: escrow is held when an order is paid, released to the
// seller's pending bucket on completion, and refunded to the buyer when a
// dispute resolves in their favor.
package orders

import (
	"context"
	"time"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusDisputed  Status = "DISPUTED"
	StatusRefunded  Status = "REFUNDED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the complete set of legal state changes. Everything not
// listed here is rejected, so the lifecycle rules live in exactly one place.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusDelivered},
	StatusDelivered: {StatusCompleted, StatusDisputed},
	StatusDisputed:  {StatusRefunded, StatusCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave the status.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Completion attribution values.
const (
	CompletedByBuyer = "buyer"
	CompletedByAuto  = "auto"
	CompletedByAdmin = "admin"
)

// Order is one marketplace purchase moving through the lifecycle.
type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"` // human-facing, e.g. PTZ1042
	ListingID   string `json:"listingId"`
	BuyerID     string `json:"buyerId"`
	SellerID    string `json:"sellerId"`
	GameID      string `json:"gameId"`
	PlatformID  string `json:"platformId,omitempty"`

	AmountUSD   string `json:"amountUsd"`
	FeePercent  string `json:"feePercent"` // effective percent after tier discount
	FeeUSD      string `json:"feeUsd"`
	EarningsUSD string `json:"earningsUsd"`

	Status         Status `json:"status"`
	CompletedBy    string `json:"completedBy,omitempty"`
	DisputeReason  string `json:"disputeReason,omitempty"`
	ResolutionNote string `json:"resolutionNote,omitempty"`

	// EarningsReleased flips once when pending earnings move to available.
	EarningsReleased bool `json:"earningsReleased"`

	PaidAt                 *time.Time `json:"paidAt,omitempty"`
	DeliveredAt            *time.Time `json:"deliveredAt,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
	DisputedAt             *time.Time `json:"disputedAt,omitempty"`
	RefundedAt             *time.Time `json:"refundedAt,omitempty"`
	CancelledAt            *time.Time `json:"cancelledAt,omitempty"`
	SellerPendingReleaseAt *time.Time `json:"sellerPendingReleaseAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListFilter narrows an order listing. Zero values mean "any".
type ListFilter struct {
	BuyerID  string
	SellerID string
	Status   Status
	Limit    int
	Offset   int
}

// Store persists orders.
//
// Update takes the status the caller read; the store applies the write only
// if the row still holds it, returning INVALID_STATE_TRANSITION otherwise.
// That compare-and-swap is what makes concurrent transitions and repeated
// scheduler runs safe.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order, expect Status) error
	List(ctx context.Context, f ListFilter) ([]*Order, error)

	// NextOrderNumber returns the next value of the shared order counter.
	NextOrderNumber(ctx context.Context) (int64, error)

	// DueForAutoComplete returns DELIVERED orders whose dispute window
	// closed before cutoff.
	DueForAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)

	// DueForEarningsRelease returns COMPLETED orders whose seller
	// protection window has passed and whose earnings are still pending.
	DueForEarningsRelease(ctx context.Context, now time.Time, limit int) ([]*Order, error)

	// MarkEarningsReleased flips the released flag exactly once. The
	// second caller gets false, which is how a release is never paid twice.
	MarkEarningsReleased(ctx context.Context, orderID string) (bool, error)
}

// FirstOrderNumber seeds the counter; the first order is PTZ1000.
const FirstOrderNumber = 1000
