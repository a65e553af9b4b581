package admin

import (
	"context"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/catalog"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/giftcards"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/money"
	"github.com/ptzlabs/marketplace/internal/orders"
	"github.com/ptzlabs/marketplace/internal/settings"
)

// Confirm carries the step-up material every override must present. The
// idempotency key is optional; when present, a reused key rejects the
// whole override.
type Confirm struct {
	Password       string `json:"password"`
	Phrase         string `json:"phrase,omitempty"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	IP             string `json:"-"`
	UserAgent      string `json:"-"`
}

// Service executes admin overrides. Every override's effect and its audit
// row run through runner as one unit of work.
type Service struct {
	audit     AuditStore
	wallet    *ledger.Service
	orders    *orders.Service
	users     *identity.Service
	listings  catalog.Listings
	messages  Messages
	giftcards *giftcards.Service
	settings  settings.Provider
	runner    database.Runner
}

// NewService wires the override service. messages and giftcards may be nil
// when those surfaces are not deployed.
func NewService(audit AuditStore, wallet *ledger.Service, orderSvc *orders.Service,
	users *identity.Service, listings catalog.Listings, messages Messages,
	cards *giftcards.Service, cfg settings.Provider, runner database.Runner) *Service {
	return &Service{
		audit:     audit,
		wallet:    wallet,
		orders:    orderSvc,
		users:     users,
		listings:  listings,
		messages:  messages,
		giftcards: cards,
		settings:  cfg,
		runner:    runner,
	}
}

// verify runs the shared step-up gauntlet: capability, reason, password
// re-entry. Phrase checks are separate because only some operations need
// one; idempotency is checked inside the override's unit of work.
func (s *Service) verify(ctx context.Context, actor authz.Actor, perm authz.Permission, c Confirm) error {
	if !actor.Can(perm) {
		return apperrors.Newf(apperrors.CodeAuthorization, "missing permission %s", perm)
	}
	if n := len(c.Reason); n < 5 || n > 500 {
		return apperrors.New(apperrors.CodeValidation, "reason must be 5 to 500 characters")
	}
	return s.users.VerifyPassword(ctx, actor.UserID, c.Password)
}

// withinAudit runs an override's effect and audit row as one unit of work.
// The idempotency check runs inside it, so a double submit either sees the
// first action's row or loses the audit insert and rolls back with it.
func (s *Service) withinAudit(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if key != "" {
			prev, err := s.audit.GetByIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if prev != nil {
				return apperrors.New(apperrors.CodeConflict, "idempotency key already used")
			}
		}
		return fn(ctx)
	})
}

func requirePhrase(c Confirm, want string) error {
	if c.Phrase != want {
		return apperrors.Newf(apperrors.CodeValidation, "type %q to confirm", want)
	}
	return nil
}

// largeAmount reports whether amount is at or above the typed-phrase
// threshold (default $1000).
func (s *Service) largeAmount(ctx context.Context, amount string) bool {
	threshold := s.settings.Get(ctx, settings.KeyLargeAmountThreshold, "1000")
	return money.Cmp(amount, threshold) >= 0
}

func (s *Service) record(ctx context.Context, a *Action) error {
	a.ID = idgen.WithPrefix("adm_")
	a.CreatedAt = time.Now().UTC()
	if err := s.audit.Record(ctx, a); err != nil {
		logging.L(ctx).Error("record admin action",
			"type", a.Type, "targetId", a.TargetID, "adminId", a.AdminID, "error", err)
		return err
	}
	actionsTotal.WithLabelValues(a.Type).Inc()
	return nil
}

// Credit adds funds to a user's available balance.
func (s *Service) Credit(ctx context.Context, actor authz.Actor, userID, amount string, c Confirm) (*ledger.Entry, error) {
	if err := s.verify(ctx, actor, authz.PermWalletAdjust, c); err != nil {
		return nil, err
	}

	var entry *ledger.Entry
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.wallet.Balance(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = s.wallet.AdminCredit(ctx, userID, amount, idgen.WithPrefix("ref_"), c.Reason)
		if err != nil {
			return err
		}
		after, _ := s.wallet.Balance(ctx, userID)

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionCredit, TargetType: "user", TargetID: userID,
			Amount: amount, Reason: c.Reason, Before: snapshot(before), After: snapshot(after),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes funds from a user's available balance. Large debits need
// the typed phrase.
func (s *Service) Debit(ctx context.Context, actor authz.Actor, userID, amount string, c Confirm) (*ledger.Entry, error) {
	if err := s.verify(ctx, actor, authz.PermWalletAdjust, c); err != nil {
		return nil, err
	}
	method := ConfirmPassword
	if s.largeAmount(ctx, amount) {
		if err := requirePhrase(c, PhraseDebit); err != nil {
			return nil, err
		}
		method = ConfirmPasswordPhrase
	}

	var entry *ledger.Entry
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.wallet.Balance(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = s.wallet.AdminDebit(ctx, userID, amount, idgen.WithPrefix("ref_"), c.Reason)
		if err != nil {
			return err
		}
		after, _ := s.wallet.Balance(ctx, userID)

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionDebit, TargetType: "user", TargetID: userID,
			Amount: amount, Reason: c.Reason, Before: snapshot(before), After: snapshot(after),
			Confirmation: method, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Freeze moves a user's available funds into the frozen bucket. Large
// freezes need the typed phrase.
func (s *Service) Freeze(ctx context.Context, actor authz.Actor, userID, amount string, c Confirm) (*ledger.Entry, error) {
	if err := s.verify(ctx, actor, authz.PermWalletAdjust, c); err != nil {
		return nil, err
	}
	method := ConfirmPassword
	if s.largeAmount(ctx, amount) {
		if err := requirePhrase(c, PhraseFreeze); err != nil {
			return nil, err
		}
		method = ConfirmPasswordPhrase
	}

	var entry *ledger.Entry
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.wallet.Balance(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = s.wallet.Freeze(ctx, userID, amount, idgen.WithPrefix("ref_"), c.Reason)
		if err != nil {
			return err
		}
		after, _ := s.wallet.Balance(ctx, userID)

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionFreeze, TargetType: "user", TargetID: userID,
			Amount: amount, Reason: c.Reason, Before: snapshot(before), After: snapshot(after),
			Confirmation: method, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Unfreeze returns frozen funds to the available bucket.
func (s *Service) Unfreeze(ctx context.Context, actor authz.Actor, userID, amount string, c Confirm) (*ledger.Entry, error) {
	if err := s.verify(ctx, actor, authz.PermWalletAdjust, c); err != nil {
		return nil, err
	}

	var entry *ledger.Entry
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.wallet.Balance(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = s.wallet.Unfreeze(ctx, userID, amount, idgen.WithPrefix("ref_"), c.Reason)
		if err != nil {
			return err
		}
		after, _ := s.wallet.Balance(ctx, userID)

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionUnfreeze, TargetType: "user", TargetID: userID,
			Amount: amount, Reason: c.Reason, Before: snapshot(before), After: snapshot(after),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ForceRefund resolves an order in the buyer's favor. Always requires the
// typed phrase.
func (s *Service) ForceRefund(ctx context.Context, actor authz.Actor, orderID string, c Confirm) (*orders.Order, error) {
	if err := s.verify(ctx, actor, authz.PermOrderOverride, c); err != nil {
		return nil, err
	}
	if err := requirePhrase(c, PhraseRefund); err != nil {
		return nil, err
	}

	var o *orders.Order
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.orders.Get(ctx, actor.UserID, true, orderID)
		if err != nil {
			return err
		}
		o, err = s.orders.Refund(ctx, orderID, c.Reason)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionForceRefund, TargetType: "order", TargetID: orderID,
			Amount: o.AmountUSD, Reason: c.Reason, Before: snapshot(before), After: snapshot(o),
			Confirmation: ConfirmPasswordPhrase, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ForceComplete resolves an order in the seller's favor. Always requires
// the typed phrase.
func (s *Service) ForceComplete(ctx context.Context, actor authz.Actor, orderID string, c Confirm) (*orders.Order, error) {
	if err := s.verify(ctx, actor, authz.PermOrderOverride, c); err != nil {
		return nil, err
	}
	if err := requirePhrase(c, PhraseComplete); err != nil {
		return nil, err
	}

	var o *orders.Order
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.orders.Get(ctx, actor.UserID, true, orderID)
		if err != nil {
			return err
		}
		o, err = s.orders.CompleteAsAdmin(ctx, orderID, c.Reason)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionForceComplete, TargetType: "order", TargetID: orderID,
			Amount: o.EarningsUSD, Reason: c.Reason, Before: snapshot(before), After: snapshot(o),
			Confirmation: ConfirmPasswordPhrase, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ExtendDisputeWindow gives the buyer more dispute time on a delivered
// order.
func (s *Service) ExtendDisputeWindow(ctx context.Context, actor authz.Actor, orderID string, hours int, c Confirm) (*orders.Order, error) {
	if err := s.verify(ctx, actor, authz.PermDisputeResolve, c); err != nil {
		return nil, err
	}

	var o *orders.Order
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.orders.Get(ctx, actor.UserID, true, orderID)
		if err != nil {
			return err
		}
		o, err = s.orders.ExtendDisputeWindow(ctx, orderID, hours)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionExtendDispute, TargetType: "order", TargetID: orderID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(o),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// SetUserBanned bans or unbans an account.
func (s *Service) SetUserBanned(ctx context.Context, actor authz.Actor, userID string, banned bool, c Confirm) (*identity.User, error) {
	if err := s.verify(ctx, actor, authz.PermUserManage, c); err != nil {
		return nil, err
	}

	status := identity.StatusActive
	actionType := ActionUnbanUser
	if banned {
		status = identity.StatusBanned
		actionType = ActionBanUser
	}

	var u *identity.User
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		u, err = s.users.SetStatus(ctx, userID, status)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: actionType, TargetType: "user", TargetID: userID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(u),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ChangeRoles replaces a user's role set.
func (s *Service) ChangeRoles(ctx context.Context, actor authz.Actor, userID string, roles []authz.Role, c Confirm) (*identity.User, error) {
	if err := s.verify(ctx, actor, authz.PermAdminManage, c); err != nil {
		return nil, err
	}
	for _, r := range roles {
		switch r {
		case authz.RoleUser, authz.RoleSeller, authz.RoleAdmin, authz.RoleSuperAdmin:
		default:
			return nil, apperrors.Newf(apperrors.CodeValidation, "unknown role %q", r)
		}
	}

	var u *identity.User
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		u, err = s.users.SetRoles(ctx, userID, roles)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionChangeRoles, TargetType: "user", TargetID: userID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(u),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ToggleAdmin switches an account's admin capabilities off or back on
// without touching its role list.
func (s *Service) ToggleAdmin(ctx context.Context, actor authz.Actor, userID string, disabled bool, c Confirm) (*identity.User, error) {
	if err := s.verify(ctx, actor, authz.PermAdminManage, c); err != nil {
		return nil, err
	}

	var u *identity.User
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		u, err = s.users.SetAdminDisabled(ctx, userID, disabled)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionToggleAdmin, TargetType: "user", TargetID: userID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(u),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateAdmin provisions a new admin account with scoped grants.
func (s *Service) CreateAdmin(ctx context.Context, actor authz.Actor, username, email, password string, grants []authz.Permission, c Confirm) (*identity.User, error) {
	if err := s.verify(ctx, actor, authz.PermAdminManage, c); err != nil {
		return nil, err
	}
	if username == "" || password == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "username and password are required")
	}

	var u *identity.User
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		var err error
		u, err = s.users.CreateAdmin(ctx, username, email, password, grants)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionCreateAdmin, TargetType: "user", TargetID: u.ID,
			Reason: c.Reason, After: snapshot(u),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UnlockProfile clears a moderation lock on a user profile.
func (s *Service) UnlockProfile(ctx context.Context, actor authz.Actor, userID string, c Confirm) (*identity.User, error) {
	if err := s.verify(ctx, actor, authz.PermUserManage, c); err != nil {
		return nil, err
	}

	var u *identity.User
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		u, err = s.users.UnlockProfile(ctx, userID)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionUnlockProfile, TargetType: "user", TargetID: userID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(u),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// HideListing takes a listing off the marketplace.
func (s *Service) HideListing(ctx context.Context, actor authz.Actor, listingID string, c Confirm) (*catalog.Listing, error) {
	if err := s.verify(ctx, actor, authz.PermListingsReview, c); err != nil {
		return nil, err
	}

	var l *catalog.Listing
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.listings.Get(ctx, listingID)
		if err != nil {
			return err
		}
		l, err = s.listings.SetStatus(ctx, listingID, catalog.StatusInactive, c.Reason)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionHideListing, TargetType: "listing", TargetID: listingID,
			Reason: c.Reason, Before: snapshot(before), After: snapshot(l),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// HideMessage hides a user message flagged by moderation.
func (s *Service) HideMessage(ctx context.Context, actor authz.Actor, messageID string, c Confirm) error {
	if err := s.verify(ctx, actor, authz.PermContentModerate, c); err != nil {
		return err
	}
	if s.messages == nil {
		return apperrors.New(apperrors.CodeValidation, "message moderation is not available")
	}

	return s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		if err := s.messages.Hide(ctx, messageID, c.Reason); err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionHideMessage, TargetType: "message", TargetID: messageID,
			Reason:       c.Reason,
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
}

// CreateGiftcard issues a new gift card.
func (s *Service) CreateGiftcard(ctx context.Context, actor authz.Actor, amount string, expiresAt *time.Time, c Confirm) (*giftcards.Card, error) {
	if err := s.verify(ctx, actor, authz.PermGiftcardManage, c); err != nil {
		return nil, err
	}

	var card *giftcards.Card
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		var err error
		card, err = s.giftcards.Create(ctx, actor.UserID, amount, expiresAt)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionCreateGiftcard, TargetType: "giftcard", TargetID: card.ID,
			Amount: amount, Reason: c.Reason, After: snapshot(card),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// DeactivateGiftcard pulls an active card out of circulation.
func (s *Service) DeactivateGiftcard(ctx context.Context, actor authz.Actor, cardID string, c Confirm) (*giftcards.Card, error) {
	if err := s.verify(ctx, actor, authz.PermGiftcardManage, c); err != nil {
		return nil, err
	}

	var card *giftcards.Card
	err := s.withinAudit(ctx, c.IdempotencyKey, func(ctx context.Context) error {
		before, err := s.giftcards.Get(ctx, cardID)
		if err != nil {
			return err
		}
		card, err = s.giftcards.Deactivate(ctx, cardID)
		if err != nil {
			return err
		}

		return s.record(ctx, &Action{
			AdminID: actor.UserID, Type: ActionDeactivateGiftcard, TargetType: "giftcard", TargetID: cardID,
			Amount: card.AmountUSD, Reason: c.Reason, Before: snapshot(before), After: snapshot(card),
			Confirmation: ConfirmPassword, IdempotencyKey: c.IdempotencyKey,
			IP: c.IP, UserAgent: c.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// Audit lists recorded actions, newest first.
func (s *Service) Audit(ctx context.Context, actor authz.Actor, f AuditFilter) ([]*Action, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.New(apperrors.CodeAuthorization, "admin access required")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.audit.List(ctx, f)
}

// UserLedger exposes a user's full ledger to admins.
func (s *Service) UserLedger(ctx context.Context, actor authz.Actor, userID string, limit, offset int) ([]*ledger.Entry, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.New(apperrors.CodeAuthorization, "admin access required")
	}
	return s.wallet.List(ctx, ledger.Filter{UserID: userID, Limit: limit, Offset: offset})
}
