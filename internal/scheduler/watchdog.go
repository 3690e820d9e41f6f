package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"warden/internal/commands"
	"warden/internal/metrics"
)

const DefaultWatchdogInterval = 2 * time.Minute

// Watchdog returns commands stuck in running past their expected finish to
// pending, so a crashed or silent actuator cannot hold a resource forever.
type Watchdog struct {
	sched            *Scheduler
	interval         time.Duration
	reconcileOnStart bool
	logger           *log.Logger
}

type WatchdogOption func(*Watchdog)

func WithInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithStartupReconcile makes Run reclaim, before its first sweep, every
// running row that this process did not admit.
func WithStartupReconcile(enabled bool) WatchdogOption {
	return func(w *Watchdog) { w.reconcileOnStart = enabled }
}

func WithWatchdogLogger(l *log.Logger) WatchdogOption {
	return func(w *Watchdog) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWatchdog(s *Scheduler, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		sched:    s,
		interval: DefaultWatchdogInterval,
		logger:   s.logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps immediately and then on every tick until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	if w.reconcileOnStart {
		if n, err := w.Reconcile(ctx); err != nil {
			w.logger.Printf("watchdog: reconcile error: %v", err)
		} else if n > 0 {
			w.logger.Printf("watchdog: reclaimed %d orphaned commands", n)
		}
	}
	w.sweepAndLog(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepAndLog(ctx)
		}
	}
}

func (w *Watchdog) sweepAndLog(ctx context.Context) {
	n, err := w.Sweep(ctx)
	if err != nil {
		w.logger.Printf("watchdog: sweep error: %v", err)
	}
	if n > 0 {
		w.logger.Printf("watchdog: reclaimed %d overdue commands", n)
	}
}

// Sweep reclaims running commands whose expected finish has passed, then
// scans. It returns how many commands were reclaimed.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	now := w.sched.now()
	overdue, err := w.sched.store.RunningOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	stillOverdue := func(c commands.Command) bool {
		return c.ExpectedFinishAt != nil && c.ExpectedFinishAt.Before(now)
	}
	n, errs := w.reclaimAll(ctx, overdue, stillOverdue)
	if err := w.sched.Scan(ctx); err != nil {
		errs = append(errs, err)
	}
	return n, errors.Join(errs...)
}

// Reconcile reclaims running rows that no admission in this process owns.
// After a restart the in-memory sets are empty, so every running row is an
// orphan of the previous process.
func (w *Watchdog) Reconcile(ctx context.Context) (int, error) {
	running, err := w.sched.store.Running(ctx)
	if err != nil {
		return 0, err
	}
	// runs under the scheduler lock
	orphan := func(c commands.Command) bool {
		_, ok := w.sched.admitted[c.ID]
		return !ok
	}
	n, errs := w.reclaimAll(ctx, running, orphan)
	if err := w.sched.Scan(ctx); err != nil {
		errs = append(errs, err)
	}
	return n, errors.Join(errs...)
}

func (w *Watchdog) reclaimAll(ctx context.Context, rows []commands.Command, eligible func(commands.Command) bool) (int, []error) {
	var errs []error
	n := 0
	for _, c := range rows {
		ok, err := w.sched.reclaim(ctx, c.ID, eligible)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	metrics.AddReclaimed(n)
	return n, errs
}
