package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically runs the ledger audit.
type Timer struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a timer with the default 5 minute interval.
func NewTimer(svc *Service, logger *slog.Logger) *Timer {
	return &Timer{
		svc:      svc,
		interval: 5 * time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic audit loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in reconciliation timer", "panic", fmt.Sprint(r))
		}
	}()

	res, err := t.svc.Run(ctx)
	if err != nil {
		t.logger.Warn("ledger reconciliation failed", "error", err)
		return
	}
	if !res.Healthy() {
		t.logger.Error("ledger reconciliation found mismatches",
			"mismatches", len(res.Mismatches), "users", res.UsersChecked)
		return
	}
	t.logger.Debug("ledger reconciliation clean",
		"users", res.UsersChecked, "entries", res.EntriesChecked, "duration", res.Duration)
}
