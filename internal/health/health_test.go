package health

import (
	"context"
	"testing"
)

func ok(name string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: true}
	}
}

func failing(name, detail string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: false, Detail: detail}
	}
}

func TestEmptyRegistryIsHealthy(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should report healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("statuses = %d, want 0", len(statuses))
	}
}

func TestAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", ok("database"))
	r.Register("scheduler", ok("scheduler"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("expected healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	// Order matches registration so the readiness payload is stable.
	if statuses[0].Name != "database" || statuses[1].Name != "scheduler" {
		t.Errorf("unexpected order: %v", statuses)
	}
}

func TestOneFailureDegradesAggregate(t *testing.T) {
	r := NewRegistry()
	r.Register("database", ok("database"))
	r.Register("scheduler", failing("scheduler", "release_earnings: connection refused"))

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("expected degraded")
	}
	if statuses[1].Detail == "" {
		t.Error("failing status should carry detail")
	}
}

func TestReRegisterReplacesChecker(t *testing.T) {
	r := NewRegistry()
	r.Register("database", failing("database", "down"))
	r.Register("database", ok("database"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("replacement checker should win")
	}
	if len(statuses) != 1 {
		t.Errorf("statuses = %d, want 1", len(statuses))
	}
}

func TestPanickingCheckerReportsUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status {
		panic("connection pool poisoned")
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("panicking checker must degrade health")
	}
	if statuses[0].Detail == "" {
		t.Error("panic detail should be surfaced")
	}
}
