//go:build integration

package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/ptzlabs/marketplace/internal/testutil"
)

func TestPostgres_DepositAndBalance(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db))
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "usr_pg01", "10.50", "dep_pg01", "test deposit"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	bal, err := svc.Balance(ctx, "usr_pg01")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Available != "10.50" {
		t.Errorf("Expected available 10.50, got %s", bal.Available)
	}
	if bal.Pending != "0.00" {
		t.Errorf("Expected pending 0.00, got %s", bal.Pending)
	}
}

func TestPostgres_EscrowRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db))
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "usr_pg02", "100.00", "dep_pg02", "seed"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := svc.HoldEscrow(ctx, "usr_pg02", "25.00", "ord_pg01"); err != nil {
		t.Fatalf("HoldEscrow failed: %v", err)
	}

	bal, err := svc.Balance(ctx, "usr_pg02")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Available != "75.00" {
		t.Errorf("Expected available 75.00 after hold, got %s", bal.Available)
	}

	if _, err := svc.RefundEscrow(ctx, "usr_pg02", "25.00", "ord_pg01"); err != nil {
		t.Fatalf("RefundEscrow failed: %v", err)
	}
	bal, _ = svc.Balance(ctx, "usr_pg02")
	if bal.Available != "100.00" {
		t.Errorf("Expected available 100.00 after refund, got %s", bal.Available)
	}
}

func TestPostgres_InsufficientFundsRejected(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db))
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "usr_pg03", "5.00", "dep_pg03", "seed"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := svc.HoldEscrow(ctx, "usr_pg03", "10.00", "ord_pg02"); err == nil {
		t.Fatal("Expected insufficient funds error, got nil")
	}

	bal, err := svc.Balance(ctx, "usr_pg03")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Available != "5.00" {
		t.Errorf("Balance changed after rejected hold: %s", bal.Available)
	}
}

func TestPostgres_ConcurrentDepositsSerialize(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db))
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(ctx, "usr_pg04", "1.00", "", "concurrent"); err != nil {
				t.Errorf("Deposit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, err := svc.Balance(ctx, "usr_pg04")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Available != "10.00" {
		t.Errorf("Expected available 10.00 after %d concurrent deposits, got %s", n, bal.Available)
	}

	entries, err := svc.History(ctx, "usr_pg04", 50, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != n {
		t.Errorf("Expected %d entries, got %d", n, len(entries))
	}
}
