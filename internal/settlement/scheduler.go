// Package settlement runs the background jobs that move orders forward
// without user action: auto-completing delivered orders once the dispute
// window closes, and releasing matured seller earnings.
package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/orders"
	"github.com/ptzlabs/marketplace/internal/traces"
)

// Job names.
const (
	JobAutoComplete    = "auto_complete"
	JobEarningsRelease = "earnings_release"
)

// JobInfo describes one background job's schedule and last run.
type JobInfo struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastCount int        `json:"lastCount"`
	LastError string     `json:"lastError,omitempty"`
}

// Scheduler owns the periodic sweeps. Every sweep is also callable directly
// so admin endpoints and tests can trigger a run without waiting for a tick.
type Scheduler struct {
	orders *orders.Service

	autoCompleteEvery time.Duration
	releaseEvery      time.Duration
	batchSize         int

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*JobInfo
}

// New creates a scheduler. Intervals of zero fall back to the defaults
// (15m auto-complete, 1h earnings release).
func New(orderSvc *orders.Service, autoCompleteEvery, releaseEvery time.Duration) *Scheduler {
	if autoCompleteEvery <= 0 {
		autoCompleteEvery = 15 * time.Minute
	}
	if releaseEvery <= 0 {
		releaseEvery = time.Hour
	}
	s := &Scheduler{
		orders:            orderSvc,
		autoCompleteEvery: autoCompleteEvery,
		releaseEvery:      releaseEvery,
		batchSize:         200,
		jobs:              make(map[string]*JobInfo),
	}
	s.jobs[JobAutoComplete] = &JobInfo{Name: JobAutoComplete, Interval: autoCompleteEvery.String()}
	s.jobs[JobEarningsRelease] = &JobInfo{Name: JobEarningsRelease, Interval: releaseEvery.String()}
	return s
}

// Start launches the sweep loops. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stop = make(chan struct{})

	s.wg.Add(2)
	go s.loop(ctx, JobAutoComplete, s.autoCompleteEvery, s.RunAutoComplete)
	go s.loop(ctx, JobEarningsRelease, s.releaseEvery, s.RunEarningsRelease)

	logging.L(ctx).Info("settlement scheduler started",
		"autoCompleteEvery", s.autoCompleteEvery, "releaseEvery", s.releaseEvery)
}

// Stop halts the loops and waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, run func(context.Context) (int, error)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx, name, run)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one job iteration. A panic in a sweep is logged and absorbed
// so one bad batch cannot kill the loop.
func (s *Scheduler) sweep(ctx context.Context, name string, run func(context.Context) (int, error)) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("settlement sweep panicked", "job", name, "panic", r)
		}
	}()
	if _, err := run(ctx); err != nil {
		logging.L(ctx).Error("settlement sweep failed", "job", name, "error", err)
	}
}

// RunAutoComplete completes delivered orders whose dispute window closed.
func (s *Scheduler) RunAutoComplete(ctx context.Context) (int, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.AutoComplete", traces.Job(JobAutoComplete))
	defer span.End()

	n, err := s.orders.AutoCompleteDue(ctx, s.batchSize)
	s.record(ctx, JobAutoComplete, n, err)
	return n, err
}

// RunEarningsRelease moves matured pending earnings to available.
func (s *Scheduler) RunEarningsRelease(ctx context.Context) (int, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.EarningsRelease", traces.Job(JobEarningsRelease))
	defer span.End()

	n, err := s.orders.ReleaseDueEarnings(ctx, s.batchSize)
	s.record(ctx, JobEarningsRelease, n, err)
	return n, err
}

func (s *Scheduler) record(ctx context.Context, name string, n int, err error) {
	now := time.Now().UTC()

	s.mu.Lock()
	info := s.jobs[name]
	info.LastRunAt = &now
	info.LastCount = n
	info.LastError = ""
	if err != nil {
		info.LastError = err.Error()
	}
	s.mu.Unlock()

	jobRunsTotal.WithLabelValues(name, outcome(err)).Inc()
	jobItemsTotal.WithLabelValues(name).Add(float64(n))
	if n > 0 {
		logging.L(ctx).Info("settlement sweep done", "job", name, "processed", n)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Jobs returns a snapshot of every job's schedule and last run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, name := range []string{JobAutoComplete, JobEarningsRelease} {
		result = append(result, *s.jobs[name])
	}
	return result
}
