package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/catalog"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/fees"
	"github.com/ptzlabs/marketplace/internal/giftcards"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/orders"
	"github.com/ptzlabs/marketplace/internal/settings"
)

const adminPassword = "s3cret-step-up"

type fixture struct {
	svc      *Service
	audit    *MemoryAuditStore
	wallet   *ledger.Service
	orders   *orders.Service
	users    *identity.Service
	listings *catalog.Memory
	cards    *giftcards.Service
	messages *MemoryMessages

	super   authz.Actor
	scoped  authz.Actor // plain admin holding only WALLET_ADJUST
	userID  string
	orderID string // an order sitting in DISPUTED
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	hash, err := identity.HashPassword(adminPassword)
	require.NoError(t, err)

	userStore := identity.NewMemoryStore()
	superUser := &identity.User{
		ID: "usr_super", Username: "root", Status: identity.StatusActive,
		Roles: []authz.Role{authz.RoleSuperAdmin}, PasswordHash: hash,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}
	scopedUser := &identity.User{
		ID: "usr_scoped", Username: "ops", Status: identity.StatusActive,
		Roles:  []authz.Role{authz.RoleAdmin},
		Grants: []authz.Permission{authz.PermWalletAdjust}, PasswordHash: hash,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}
	buyer := &identity.User{
		ID: "usr_buyer", Username: "buyer", Status: identity.StatusActive,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}
	seller := &identity.User{
		ID: "usr_seller", Username: "seller", Status: identity.StatusActive,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}
	for _, u := range []*identity.User{superUser, scopedUser, buyer, seller} {
		require.NoError(t, userStore.Create(ctx, u))
	}

	listings := catalog.NewMemory()
	listings.Put(&catalog.Listing{
		ID: "lst_1", SellerID: seller.ID, GameID: "g1",
		PriceUSD: "25.00", Status: catalog.StatusApproved,
	})

	wallet := ledger.NewService(ledger.NewMemoryStore())
	_, err = wallet.Deposit(ctx, buyer.ID, "5000.00", "pi_seed", "")
	require.NoError(t, err)

	cfg := settings.NewMemory()
	users := identity.NewService(userStore)
	runner := database.NewMemoryRunner()
	orderSvc := orders.NewService(orders.NewMemoryStore(), wallet,
		fees.NewResolver(fees.NewMemoryRules(), "5"), users, listings, cfg, runner, nil)

	o, err := orderSvc.Create(ctx, buyer.ID, "lst_1")
	require.NoError(t, err)
	_, err = orderSvc.Deliver(ctx, seller.ID, o.ID)
	require.NoError(t, err)
	_, err = orderSvc.Dispute(ctx, buyer.ID, o.ID, "credentials rejected at login")
	require.NoError(t, err)

	audit := NewMemoryAuditStore()
	cards := giftcards.NewService(giftcards.NewMemoryStore(), wallet, runner)
	messages := NewMemoryMessages()
	svc := NewService(audit, wallet, orderSvc, users, listings, messages, cards, cfg, runner)

	return &fixture{
		svc: svc, audit: audit, wallet: wallet, orders: orderSvc,
		users: users, listings: listings, cards: cards, messages: messages,
		super:  superUser.Actor(),
		scoped: scopedUser.Actor(),
		userID: buyer.ID, orderID: o.ID,
	}
}

func confirmWith(key, phrase string) Confirm {
	return Confirm{
		Password:       adminPassword,
		Phrase:         phrase,
		Reason:         "support ticket 4417",
		IdempotencyKey: key,
	}
}

func TestCreditRequiresCorrectPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := confirmWith("key-1", "")
	bad.Password = "wrong"
	_, err := f.svc.Credit(ctx, f.super, f.userID, "10.00", bad)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))

	_, err = f.svc.Credit(ctx, f.super, f.userID, "10.00", confirmWith("key-1", ""))
	require.NoError(t, err)

	bal, _ := f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "4985.00", bal.Available) // 5000 - 25 order + 10 credit
}

func TestReasonLengthValidated(t *testing.T) {
	f := newFixture(t)

	c := confirmWith("key-1", "")
	c.Reason = "ok"
	_, err := f.svc.Credit(context.Background(), f.super, f.userID, "10.00", c)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestIdempotencyKeyReuseConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Credit(ctx, f.super, f.userID, "10.00", confirmWith("key-dup", ""))
	require.NoError(t, err)

	_, err = f.svc.Credit(ctx, f.super, f.userID, "10.00", confirmWith("key-dup", ""))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	// Only the first credit landed, and only one audit row exists.
	bal, _ := f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "4985.00", bal.Available)

	actions, err := f.svc.Audit(ctx, f.super, AuditFilter{Type: ActionCredit})
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestIdempotencyKeyIsOptional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two keyless credits are two independent actions.
	_, err := f.svc.Credit(ctx, f.super, f.userID, "10.00", confirmWith("", ""))
	require.NoError(t, err)
	_, err = f.svc.Credit(ctx, f.super, f.userID, "10.00", confirmWith("", ""))
	require.NoError(t, err)

	bal, _ := f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "4995.00", bal.Available) // 5000 - 25 order + 2x10

	actions, err := f.svc.Audit(ctx, f.super, AuditFilter{Type: ActionCredit})
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

func TestLargeDebitNeedsTypedPhrase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// $1000 is at the threshold.
	_, err := f.svc.Debit(ctx, f.super, f.userID, "1000.00", confirmWith("key-1", ""))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.svc.Debit(ctx, f.super, f.userID, "1000.00", confirmWith("key-1", "CONFIRM DEBIT"))
	require.NoError(t, err)

	actions, err := f.svc.Audit(ctx, f.super, AuditFilter{Type: ActionDebit})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ConfirmPasswordPhrase, actions[0].Confirmation)

	// Below the threshold the password alone is enough.
	_, err = f.svc.Debit(ctx, f.super, f.userID, "999.99", confirmWith("key-2", ""))
	require.NoError(t, err)
}

func TestFreezeAndUnfreeze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Freeze(ctx, f.super, f.userID, "2000.00", confirmWith("key-1", ""))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.svc.Freeze(ctx, f.super, f.userID, "2000.00", confirmWith("key-1", "CONFIRM FREEZE"))
	require.NoError(t, err)

	bal, _ := f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "2975.00", bal.Available)
	assert.Equal(t, "2000.00", bal.Frozen)

	_, err = f.svc.Unfreeze(ctx, f.super, f.userID, "2000.00", confirmWith("key-2", ""))
	require.NoError(t, err)

	bal, _ = f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "4975.00", bal.Available)
	assert.Equal(t, "0.00", bal.Frozen)
}

func TestScopedAdminGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WALLET_ADJUST grant covers credit.
	_, err := f.svc.Credit(ctx, f.scoped, f.userID, "5.00", confirmWith("key-1", ""))
	require.NoError(t, err)

	// But not order overrides.
	_, err = f.svc.ForceRefund(ctx, f.scoped, f.orderID, confirmWith("key-2", "CONFIRM REFUND"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))
}

func TestForceRefundAlwaysNeedsPhrase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ForceRefund(ctx, f.super, f.orderID, confirmWith("key-1", ""))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	o, err := f.svc.ForceRefund(ctx, f.super, f.orderID, confirmWith("key-1", "CONFIRM REFUND"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusRefunded, o.Status)

	// Buyer made whole.
	bal, _ := f.wallet.Balance(ctx, f.userID)
	assert.Equal(t, "5000.00", bal.Available)

	// Audit row carries before/after order snapshots.
	actions, err := f.svc.Audit(ctx, f.super, AuditFilter{Type: ActionForceRefund})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Contains(t, string(actions[0].Before), string(orders.StatusDisputed))
	assert.Contains(t, string(actions[0].After), string(orders.StatusRefunded))
}

func TestForceComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ForceComplete(ctx, f.super, f.orderID, confirmWith("key-1", "CONFIRM COMPLETE"))
	require.NoError(t, err)

	o, err := f.orders.Get(ctx, f.super.UserID, true, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, orders.CompletedByAdmin, o.CompletedBy)
}

func TestBanAndUnban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.SetUserBanned(ctx, f.super, f.userID, true, confirmWith("key-1", ""))
	require.NoError(t, err)
	assert.Equal(t, identity.StatusBanned, u.Status)

	u, err = f.svc.SetUserBanned(ctx, f.super, f.userID, false, confirmWith("key-2", ""))
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, u.Status)
}

func TestCreateAdminAndToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateAdmin(ctx, f.super, "new-admin", "a@example.com", "initial-pass",
		[]authz.Permission{authz.PermDisputeResolve}, confirmWith("key-1", ""))
	require.NoError(t, err)
	assert.True(t, u.Actor().Can(authz.PermDisputeResolve))
	assert.False(t, u.Actor().Can(authz.PermWalletAdjust))

	// Toggling off strips admin capabilities without changing roles.
	u, err = f.svc.ToggleAdmin(ctx, f.super, u.ID, true, confirmWith("key-2", ""))
	require.NoError(t, err)
	assert.False(t, u.Actor().IsAdmin())
	assert.Contains(t, u.Roles, authz.RoleAdmin)
}

func TestHideListingAndMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.HideListing(ctx, f.super, "lst_1", confirmWith("key-1", ""))
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusInactive, l.Status)

	require.NoError(t, f.svc.HideMessage(ctx, f.super, "msg_9", confirmWith("key-2", "")))
	assert.Equal(t, "support ticket 4417", f.messages.Hidden["msg_9"])
}

func TestGiftcardLifecycleIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card, err := f.svc.CreateGiftcard(ctx, f.super, "50.00", nil, confirmWith("key-1", ""))
	require.NoError(t, err)

	_, err = f.svc.DeactivateGiftcard(ctx, f.super, card.ID, confirmWith("key-2", ""))
	require.NoError(t, err)

	actions, err := f.svc.Audit(ctx, f.super, AuditFilter{TargetID: card.ID})
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

func TestAuditRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	stranger := authz.Actor{UserID: "usr_nobody", Roles: []authz.Role{authz.RoleUser}}
	_, err := f.svc.Audit(context.Background(), stranger, AuditFilter{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))
}

func TestUserLedgerView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entries, err := f.svc.UserLedger(ctx, f.super, f.userID, 50, 0)
	require.NoError(t, err)
	// Seed deposit + escrow hold for the disputed order.
	assert.Len(t, entries, 2)
}
