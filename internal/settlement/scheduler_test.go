package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/catalog"
	"github.com/ptzlabs/marketplace/internal/database"
	"github.com/ptzlabs/marketplace/internal/fees"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/orders"
	"github.com/ptzlabs/marketplace/internal/settings"
)

type fixture struct {
	sched  *Scheduler
	orders *orders.Service
	wallet *ledger.Service
	cfg    *settings.Memory

	buyerID  string
	sellerID string
	orderID  string
}

// newDeliveredOrder builds an order sitting in DELIVERED with the dispute
// window already closed.
func newDeliveredOrder(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	userStore := identity.NewMemoryStore()
	require.NoError(t, userStore.Create(ctx, &identity.User{
		ID: "usr_buyer", Username: "buyer", Status: identity.StatusActive,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}))
	require.NoError(t, userStore.Create(ctx, &identity.User{
		ID: "usr_seller", Username: "seller", Status: identity.StatusActive,
		SellerLevel: fees.LevelBronze, SalesVolume: "0.00",
	}))

	listings := catalog.NewMemory()
	listings.Put(&catalog.Listing{
		ID: "lst_1", SellerID: "usr_seller", GameID: "g1",
		PriceUSD: "25.00", Status: catalog.StatusApproved,
	})

	wallet := ledger.NewService(ledger.NewMemoryStore())
	_, err := wallet.Deposit(ctx, "usr_buyer", "100.00", "pi_seed", "")
	require.NoError(t, err)

	cfg := settings.NewMemory()
	orderSvc := orders.NewService(orders.NewMemoryStore(), wallet,
		fees.NewResolver(fees.NewMemoryRules(), "5"),
		identity.NewService(userStore), listings, cfg, database.NewMemoryRunner(), nil)

	o, err := orderSvc.Create(ctx, "usr_buyer", "lst_1")
	require.NoError(t, err)
	o, err = orderSvc.Deliver(ctx, "usr_seller", o.ID)
	require.NoError(t, err)

	// Shrink the dispute window so the order is already due.
	cfg.Set(settings.KeyDisputeWindowHours, "0")
	// Earnings mature immediately once completed.
	cfg.Set(settings.KeySellerProtectionDays, "0")

	return &fixture{
		sched:   New(orderSvc, time.Minute, time.Minute),
		orders:  orderSvc,
		wallet:  wallet,
		cfg:     cfg,
		buyerID: "usr_buyer", sellerID: "usr_seller", orderID: o.ID,
	}
}

func TestAutoCompleteSweep(t *testing.T) {
	f := newDeliveredOrder(t)
	ctx := context.Background()

	n, err := f.sched.RunAutoComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bal, err := f.wallet.Balance(ctx, f.sellerID)
	require.NoError(t, err)
	assert.Equal(t, "23.75", bal.Pending)

	// A second sweep has nothing to do.
	n, err = f.sched.RunAutoComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEarningsReleaseSweepIsIdempotent(t *testing.T) {
	f := newDeliveredOrder(t)
	ctx := context.Background()

	_, err := f.sched.RunAutoComplete(ctx)
	require.NoError(t, err)

	n, err := f.sched.RunEarningsRelease(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bal, _ := f.wallet.Balance(ctx, f.sellerID)
	assert.Equal(t, "23.75", bal.Available)
	assert.Equal(t, "0.00", bal.Pending)

	// Replaying both sweeps moves nothing twice.
	n, err = f.sched.RunAutoComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = f.sched.RunEarningsRelease(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	bal, _ = f.wallet.Balance(ctx, f.sellerID)
	assert.Equal(t, "23.75", bal.Available)
}

func TestJobsSnapshot(t *testing.T) {
	f := newDeliveredOrder(t)
	ctx := context.Background()

	jobs := f.sched.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobAutoComplete, jobs[0].Name)
	assert.Nil(t, jobs[0].LastRunAt)

	_, err := f.sched.RunAutoComplete(ctx)
	require.NoError(t, err)

	jobs = f.sched.Jobs()
	require.NotNil(t, jobs[0].LastRunAt)
	assert.Equal(t, 1, jobs[0].LastCount)
	assert.Empty(t, jobs[0].LastError)
}

func TestStartStop(t *testing.T) {
	f := newDeliveredOrder(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.sched.Start(ctx)
	f.sched.Start(ctx) // second start is a no-op
	f.sched.Stop()
	f.sched.Stop() // second stop is a no-op
}
