package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/ledger"
)

func TestRunCleanLedger(t *testing.T) {
	store := ledger.NewMemoryStore()
	wallet := ledger.NewService(store)
	ctx := context.Background()

	_, err := wallet.Deposit(ctx, "usr_r1", "100.00", "dep_1", "seed")
	require.NoError(t, err)
	_, err = wallet.HoldEscrow(ctx, "usr_r1", "40.00", "ord_1")
	require.NoError(t, err)
	_, err = wallet.ReleaseToPending(ctx, "usr_r2", "38.00", "ord_1")
	require.NoError(t, err)

	res, err := NewService(wallet).Run(ctx)
	require.NoError(t, err)

	assert.True(t, res.Healthy())
	assert.Equal(t, 2, res.UsersChecked)
	assert.Equal(t, 3, res.EntriesChecked)
}

func TestRunEmptyLedger(t *testing.T) {
	res, err := NewService(ledger.NewService(ledger.NewMemoryStore())).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Healthy())
	assert.Equal(t, 0, res.UsersChecked)
}

// brokenSource hands back entries whose snapshots do not follow from the
// deltas, simulating a store-level corruption.
type brokenSource struct {
	entries []*ledger.Entry
}

func (b *brokenSource) List(_ context.Context, f ledger.Filter) ([]*ledger.Entry, error) {
	if f.Offset >= len(b.entries) {
		return nil, nil
	}
	return b.entries, nil
}

func TestRunDetectsBrokenChain(t *testing.T) {
	src := &brokenSource{entries: []*ledger.Entry{
		{
			ID: "ent_1", UserID: "usr_bad", Type: ledger.TypeDeposit,
			Amount: "10.00", DeltaAvailable: "10.00", DeltaPending: "0.00", DeltaFrozen: "0.00",
			Available: "10.00", Pending: "0.00", Frozen: "0.00",
		},
		{
			ID: "ent_2", UserID: "usr_bad", Type: ledger.TypeDeposit,
			Amount: "5.00", DeltaAvailable: "5.00", DeltaPending: "0.00", DeltaFrozen: "0.00",
			// Snapshot says 20.00 but 10.00 + 5.00 is 15.00.
			Available: "20.00", Pending: "0.00", Frozen: "0.00",
		},
	}}

	res, err := NewService(src).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Healthy())
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "usr_bad", res.Mismatches[0].UserID)
	assert.Equal(t, "ent_2", res.Mismatches[0].EntryID)
}

func TestRunDetectsNegativeBucket(t *testing.T) {
	src := &brokenSource{entries: []*ledger.Entry{
		{
			ID: "ent_1", UserID: "usr_neg", Type: ledger.TypeAdminDebit,
			Amount: "5.00", DeltaAvailable: "-5.00", DeltaPending: "0.00", DeltaFrozen: "0.00",
			Available: "-5.00", Pending: "0.00", Frozen: "0.00",
		},
	}}

	res, err := NewService(src).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Healthy())
	require.Len(t, res.Mismatches, 1)
	assert.Contains(t, res.Mismatches[0].Detail, "negative bucket")
}
