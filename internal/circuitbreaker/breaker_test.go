package circuitbreaker

import (
	"testing"
	"time"
)

const hook = "https://hooks.example.com/orders"

func TestAllowsUnknownKey(t *testing.T) {
	b := New(3, time.Minute)
	if !b.Allow(hook) {
		t.Error("fresh key should be allowed")
	}
	if got := b.State(hook); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestTripsOpenAtThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	if b.State(hook) != StateClosed {
		t.Fatal("circuit tripped below threshold")
	}
	if !b.Allow(hook) {
		t.Fatal("closed circuit must allow")
	}

	b.RecordFailure(hook)
	if b.State(hook) != StateOpen {
		t.Fatal("circuit did not trip at threshold")
	}
	if b.Allow(hook) {
		t.Error("open circuit must reject")
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	b.RecordSuccess(hook)
	b.RecordFailure(hook)
	b.RecordFailure(hook)

	if b.State(hook) != StateClosed {
		t.Error("non-consecutive failures must not trip the circuit")
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure(hook)
	if b.State(hook) != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow(hook) {
		t.Fatal("cooled-down circuit should admit a probe")
	}
	if b.State(hook) != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State(hook))
	}
	if b.Allow(hook) {
		t.Error("only one probe may be in flight")
	}

	b.RecordSuccess(hook)
	if b.State(hook) != StateClosed {
		t.Error("successful probe should close the circuit")
	}
	if !b.Allow(hook) {
		t.Error("closed circuit must allow")
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure(hook)
	time.Sleep(20 * time.Millisecond)
	if !b.Allow(hook) {
		t.Fatal("expected probe admission")
	}

	b.RecordFailure(hook)
	if b.State(hook) != StateOpen {
		t.Error("failed probe should reopen the circuit")
	}
	if b.Allow(hook) {
		t.Error("reopened circuit must reject before the next cool-down")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)

	b.RecordFailure(hook)
	if b.State(hook) != StateOpen {
		t.Fatal("expected open")
	}
	if !b.Allow("https://other.example.com/hook") {
		t.Error("unrelated key should be unaffected")
	}
}
