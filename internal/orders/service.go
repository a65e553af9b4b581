package orders

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/catalog"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/fees"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/settings"
	"github.com/ptzlabs/marketplace/internal/traces"
)

// Events receives order lifecycle notifications. Delivery is best effort;
// the lifecycle never fails because a notification could not be sent.
type Events interface {
	Publish(ctx context.Context, userID, event string, payload any)
}

// Service drives the order lifecycle. Transitions that move money run
// through runner so the status change and its ledger entries land
// together.
type Service struct {
	store    Store
	wallet   *ledger.Service
	fees     *fees.Resolver
	users    *identity.Service
	listings catalog.Listings
	settings settings.Provider
	runner   database.Runner
	events   Events
}

// NewService wires the order service with its collaborators. events may be
// nil.
func NewService(store Store, wallet *ledger.Service, feeResolver *fees.Resolver,
	users *identity.Service, listings catalog.Listings, cfg settings.Provider,
	runner database.Runner, events Events) *Service {
	return &Service{
		store:    store,
		wallet:   wallet,
		fees:     feeResolver,
		users:    users,
		listings: listings,
		settings: cfg,
		runner:   runner,
		events:   events,
	}
}

func (s *Service) publish(ctx context.Context, userID, event string, o *Order) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, userID, event, o)
}

func (s *Service) disputeWindow(ctx context.Context) time.Duration {
	hours := settings.GetInt(ctx, s.settings, settings.KeyDisputeWindowHours, 24)
	return time.Duration(hours) * time.Hour
}

func (s *Service) protectionWindow(ctx context.Context) time.Duration {
	days := settings.GetInt(ctx, s.settings, settings.KeySellerProtectionDays, 10)
	return time.Duration(days) * 24 * time.Hour
}

// Create buys a listing: it prices the order, holds the buyer's funds in
// escrow, and records the order as PAID. Payment is synchronous and the
// hold and the insert share one unit of work, so a failed hold leaves no
// order behind.
func (s *Service) Create(ctx context.Context, buyerID, listingID string) (*Order, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Create",
		traces.UserID(buyerID), attribute.String("listing.id", listingID))
	defer span.End()

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != catalog.StatusApproved {
		return nil, apperrors.New(apperrors.CodeValidation, "listing is not available for purchase")
	}
	if listing.SellerID == buyerID {
		return nil, apperrors.New(apperrors.CodeValidation, "cannot buy your own listing")
	}

	buyer, err := s.users.Get(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if buyer.Status == identity.StatusBanned {
		return nil, apperrors.New(apperrors.CodeAuthorization, "account is banned")
	}
	seller, err := s.users.Get(ctx, listing.SellerID)
	if err != nil {
		return nil, err
	}

	quote, err := s.fees.Quote(ctx, listing.PriceUSD, listing.GameID, listing.PlatformID, seller.SellerLevel)
	if err != nil {
		return nil, fmt.Errorf("quote fees: %w", err)
	}

	var o *Order
	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.store.NextOrderNumber(ctx)
		if err != nil {
			return fmt.Errorf("next order number: %w", err)
		}

		now := time.Now().UTC()
		o = &Order{
			ID:          idgen.WithPrefix("ord_"),
			OrderNumber: fmt.Sprintf("PTZ%d", n),
			ListingID:   listing.ID,
			BuyerID:     buyerID,
			SellerID:    listing.SellerID,
			GameID:      listing.GameID,
			PlatformID:  listing.PlatformID,
			AmountUSD:   listing.PriceUSD,
			FeePercent:  quote.EffectivePercent,
			FeeUSD:      quote.FeeUSD,
			EarningsUSD: quote.EarningsUSD,
			Status:      StatusPaid,
			PaidAt:      &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// Hold first: an insufficient balance aborts before anything is
		// written.
		if _, err := s.wallet.HoldEscrow(ctx, buyerID, o.AmountUSD, o.ID); err != nil {
			return err
		}
		if err := s.store.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.listings.SetStatus(ctx, listing.ID, catalog.StatusSold, ""); err != nil {
		logging.L(ctx).Warn("mark listing sold", "listingId", listing.ID, "error", err)
	}

	s.publish(ctx, o.SellerID, "order.paid", o)
	s.publish(ctx, o.BuyerID, "order.paid", o)
	return o, nil
}

// Get returns an order visible to the actor: its buyer, its seller, or an
// admin.
func (s *Service) Get(ctx context.Context, actorID string, isAdmin bool, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && actorID != o.BuyerID && actorID != o.SellerID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "not a participant in this order")
	}
	return o, nil
}

// List returns the actor's orders in the given role.
func (s *Service) List(ctx context.Context, actorID, role string, status Status, limit, offset int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	f := ListFilter{Status: status, Limit: limit, Offset: offset}
	switch role {
	case "seller":
		f.SellerID = actorID
	default:
		f.BuyerID = actorID
	}
	return s.store.List(ctx, f)
}

// Deliver marks the order delivered by its seller and opens the dispute
// window.
func (s *Service) Deliver(ctx context.Context, sellerID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != sellerID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only the seller can deliver")
	}
	if !CanTransition(o.Status, StatusDelivered) {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot deliver order in state %s", o.Status)
	}

	prev := o.Status
	now := time.Now().UTC()
	o.Status = StatusDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	if err := s.store.Update(ctx, o, prev); err != nil {
		return nil, err
	}

	s.publish(ctx, o.BuyerID, "order.delivered", o)
	return o, nil
}

// Complete confirms receipt. The buyer calls it directly; the scheduler and
// admin overrides go through completeFrom with their own attribution.
func (s *Service) Complete(ctx context.Context, buyerID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only the buyer can confirm receipt")
	}
	return s.completeFrom(ctx, orderID, CompletedByBuyer, "")
}

// completeFrom transitions the order to COMPLETED, credits the seller's
// pending earnings, and updates the seller's lifetime volume and tier.
//
// The order is re-read inside the unit of work and the credit lands before
// the status swap: a concurrent completer fails the swap and takes its
// credit back down with it, so at most one credit survives.
func (s *Service) completeFrom(ctx context.Context, orderID string, by, note string) (*Order, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Complete", traces.OrderID(orderID))
	defer span.End()

	var o *Order
	var prev Status
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.store.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCompleted) {
			return apperrors.Newf(apperrors.CodeInvalidTransition, "cannot complete order in state %s", o.Status)
		}

		if _, err := s.wallet.ReleaseToPending(ctx, o.SellerID, o.EarningsUSD, o.ID); err != nil {
			logging.L(ctx).Error("credit pending earnings", "orderId", o.ID, "sellerId", o.SellerID, "error", err)
			return err
		}

		prev = o.Status
		now := time.Now().UTC()
		release := now.Add(s.protectionWindow(ctx))
		o.Status = StatusCompleted
		o.CompletedBy = by
		o.CompletedAt = &now
		o.SellerPendingReleaseAt = &release
		o.UpdatedAt = now
		if note != "" {
			o.ResolutionNote = note
		}
		return s.store.Update(ctx, o, prev)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.Amount(o.EarningsUSD))

	if err := s.users.AddSalesVolume(ctx, o.SellerID, o.AmountUSD, fees.LevelForVolume); err != nil {
		logging.L(ctx).Warn("update seller volume", "sellerId", o.SellerID, "error", err)
	}

	transitionsTotal.WithLabelValues(string(prev), string(StatusCompleted)).Inc()
	s.publish(ctx, o.SellerID, "order.completed", o)
	s.publish(ctx, o.BuyerID, "order.completed", o)
	return o, nil
}

// Dispute opens a dispute while the window is still open.
func (s *Service) Dispute(ctx context.Context, buyerID, orderID, reason string) (*Order, error) {
	if reason == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "dispute reason is required")
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only the buyer can dispute")
	}
	if !CanTransition(o.Status, StatusDisputed) {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot dispute order in state %s", o.Status)
	}
	if o.DeliveredAt == nil || time.Now().UTC().After(o.DeliveredAt.Add(s.disputeWindow(ctx))) {
		return nil, apperrors.New(apperrors.CodeValidation, "dispute window has closed")
	}

	prev := o.Status
	now := time.Now().UTC()
	o.Status = StatusDisputed
	o.DisputeReason = reason
	o.DisputedAt = &now
	o.UpdatedAt = now
	if err := s.store.Update(ctx, o, prev); err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(prev), string(StatusDisputed)).Inc()
	s.publish(ctx, o.SellerID, "order.disputed", o)
	return o, nil
}

// Cancel abandons an order that never reached payment.
func (s *Service) Cancel(ctx context.Context, buyerID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only the buyer can cancel")
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot cancel order in state %s", o.Status)
	}

	prev := o.Status
	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	if err := s.store.Update(ctx, o, prev); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(prev), string(StatusCancelled)).Inc()
	return o, nil
}

// Refund resolves an order in the buyer's favor: escrowed funds return to
// the buyer's available balance. Used by dispute resolution and admin
// overrides.
func (s *Service) Refund(ctx context.Context, orderID, note string) (*Order, error) {
	var o *Order
	var prev Status
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.store.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusRefunded) {
			return apperrors.Newf(apperrors.CodeInvalidTransition, "cannot refund order in state %s", o.Status)
		}

		if _, err := s.wallet.RefundEscrow(ctx, o.BuyerID, o.AmountUSD, o.ID); err != nil {
			logging.L(ctx).Error("refund escrow", "orderId", o.ID, "buyerId", o.BuyerID, "error", err)
			return err
		}

		prev = o.Status
		now := time.Now().UTC()
		o.Status = StatusRefunded
		o.RefundedAt = &now
		o.ResolutionNote = note
		o.UpdatedAt = now
		return s.store.Update(ctx, o, prev)
	})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(prev), string(StatusRefunded)).Inc()
	s.publish(ctx, o.BuyerID, "order.refunded", o)
	s.publish(ctx, o.SellerID, "order.refunded", o)
	return o, nil
}

// CompleteAsAdmin resolves an order in the seller's favor.
func (s *Service) CompleteAsAdmin(ctx context.Context, orderID, note string) (*Order, error) {
	return s.completeFrom(ctx, orderID, CompletedByAdmin, note)
}

// ExtendDisputeWindow gives the buyer more time by shifting the delivery
// timestamp forward.
func (s *Service) ExtendDisputeWindow(ctx context.Context, orderID string, hours int) (*Order, error) {
	if hours <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "extension hours must be positive")
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusDelivered || o.DeliveredAt == nil {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot extend dispute window in state %s", o.Status)
	}

	shifted := o.DeliveredAt.Add(time.Duration(hours) * time.Hour)
	o.DeliveredAt = &shifted
	o.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, o, StatusDelivered); err != nil {
		return nil, err
	}
	return o, nil
}

// AutoCompleteDue completes delivered orders whose dispute window closed.
// Each order is handled independently; one failure never stops the batch.
func (s *Service) AutoCompleteDue(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-s.disputeWindow(ctx))
	due, err := s.store.DueForAutoComplete(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("query auto-complete candidates: %w", err)
	}

	done := 0
	for _, o := range due {
		if _, err := s.completeFrom(ctx, o.ID, CompletedByAuto, ""); err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
				continue // lost the race to a buyer confirm or dispute
			}
			logging.L(ctx).Error("auto-complete order", "orderId", o.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

// ReleaseDueEarnings moves matured pending earnings to available. The
// released flag flips exactly once per order, so a rerun or a second
// scheduler instance cannot pay a release twice.
func (s *Service) ReleaseDueEarnings(ctx context.Context, limit int) (int, error) {
	due, err := s.store.DueForEarningsRelease(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("query release candidates: %w", err)
	}

	done := 0
	for _, o := range due {
		var won bool
		err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			won, err = s.store.MarkEarningsReleased(ctx, o.ID)
			if err != nil || !won {
				return err
			}
			_, err = s.wallet.ReleasePendingToAvailable(ctx, o.SellerID, o.EarningsUSD, o.ID)
			return err
		})
		if err != nil {
			logging.L(ctx).Error("release pending earnings", "orderId", o.ID, "sellerId", o.SellerID, "error", err)
			continue
		}
		if !won {
			continue
		}
		s.publish(ctx, o.SellerID, "earnings.released", o)
		done++
	}
	return done, nil
}
