package actuator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"warden/internal/commands"
	"warden/internal/scheduler"
)

// Handler performs one action. It should return promptly once ctx is done.
type Handler interface {
	Handle(ctx context.Context, cmd commands.Command) error
}

type HandlerFunc func(ctx context.Context, cmd commands.Command) error

func (f HandlerFunc) Handle(ctx context.Context, cmd commands.Command) error { return f(ctx, cmd) }

// Precondition is something an action must obtain before it starts, such as
// a drawable surface for the camera.
type Precondition interface {
	Wait(ctx context.Context) error
}

// Runner is the in-process actuator. Each admission runs on the goroutine
// the scheduler started for it and reports exactly one outcome.
type Runner struct {
	handlers            map[string]Handler
	preconditions       map[string]Precondition
	preconditionTimeout time.Duration
	reportTimeout       time.Duration
	reportAttempts      int
	logger              *log.Logger

	mu       sync.Mutex
	inflight map[uint64]chan struct{}
}

var _ scheduler.Actuator = (*Runner)(nil)

type RunnerOption func(*Runner)

// WithPreconditionTimeout bounds how long an action waits for its precondition.
func WithPreconditionTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.preconditionTimeout = d
		}
	}
}

func WithReportTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.reportTimeout = d
		}
	}
}

func WithRunnerLogger(l *log.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		handlers:            make(map[string]Handler),
		preconditions:       make(map[string]Precondition),
		preconditionTimeout: 10 * time.Second,
		reportTimeout:       5 * time.Second,
		reportAttempts:      3,
		logger:              log.Default(),
		inflight:            make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for an action type. Register before the scheduler starts.
func (r *Runner) Handle(action string, h Handler) {
	r.handlers[action] = h
}

// Require makes action wait for p before its handler runs.
func (r *Runner) Require(action string, p Precondition) {
	r.preconditions[action] = p
}

func (r *Runner) OnAdmitted(ctx context.Context, adm *scheduler.Admission) {
	id := adm.Command.ID
	slot := make(chan struct{})
	prev := r.claim(id, slot)
	defer r.vacate(id, slot)

	// a reclaimed attempt of the same command may still be unwinding
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
		}
	}

	start := time.Now()
	out := r.run(ctx, adm)

	if ctx.Err() != nil {
		// reclaimed, cleared or shutting down: the scheduler no longer
		// expects this attempt to report
		r.logger.Printf("actuator: command %d attempt %d cancelled after %s", id, adm.Attempt, time.Since(start).Round(time.Millisecond))
		return
	}
	r.report(ctx, adm, out)
}

func (r *Runner) run(ctx context.Context, adm *scheduler.Admission) (out scheduler.Outcome) {
	cmd := adm.Command
	defer func() {
		if p := recover(); p != nil {
			out = scheduler.Failed(fmt.Sprintf("%s panicked: %v", cmd.ActionType, p))
		}
	}()

	if err := ctx.Err(); err != nil {
		return scheduler.Failed("cancelled before start")
	}
	h, ok := r.handlers[cmd.ActionType]
	if !ok {
		return scheduler.Failed(fmt.Sprintf("unsupported action %q", cmd.ActionType))
	}
	if p, ok := r.preconditions[cmd.ActionType]; ok {
		wctx, cancel := context.WithTimeout(ctx, r.preconditionTimeout)
		err := p.Wait(wctx)
		cancel()
		if err != nil {
			return scheduler.Failed(fmt.Sprintf("%s precondition not met: %v", cmd.ActionType, err))
		}
	}
	if err := h.Handle(ctx, cmd); err != nil {
		return scheduler.Failed(fmt.Sprintf("%s failed: %v", cmd.ActionType, err))
	}
	return scheduler.Succeeded()
}

// report retries storage failures with a short backoff; if it still fails
// the watchdog eventually reclaims the command.
func (r *Runner) report(ctx context.Context, adm *scheduler.Admission, out scheduler.Outcome) {
	base := context.WithoutCancel(ctx)
	for attempt := 0; attempt < r.reportAttempts; attempt++ {
		rctx, cancel := context.WithTimeout(base, r.reportTimeout)
		err := adm.Done(rctx, out)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, scheduler.ErrStaleCompletion) || errors.Is(err, scheduler.ErrNotAdmitted) {
			r.logger.Printf("actuator: dropped outcome of command %d attempt %d: %v", adm.Command.ID, adm.Attempt, err)
			return
		}
		r.logger.Printf("actuator: report command %d: %v", adm.Command.ID, err)
		time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond)
	}
}

func (r *Runner) claim(id uint64, slot chan struct{}) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.inflight[id]
	r.inflight[id] = slot
	return prev
}

func (r *Runner) vacate(id uint64, slot chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[id] == slot {
		delete(r.inflight, id)
	}
	close(slot)
}

// InFlight reports how many commands have a running attempt.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
