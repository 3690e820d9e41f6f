package scheduler

import (
	"context"
	"sync"

	"warden/internal/commands"
)

// Admission is the handle an actuator gets for one admitted attempt of a
// command. Done releases the command's resources.
type Admission struct {
	Command commands.Command
	Attempt int
	// Token correlates this attempt across logs and webhook deliveries.
	Token string

	sched *Scheduler
	mu    sync.Mutex
	done  bool
}

// Done reports the outcome of this attempt. Calling it again after a
// successful call is a no-op. A call for an attempt that the watchdog has
// since reclaimed returns ErrStaleCompletion and releases nothing.
func (a *Admission) Done(ctx context.Context, out Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return nil
	}
	if err := a.sched.complete(ctx, a.Command.ID, a.Attempt, out); err != nil {
		return err
	}
	a.done = true
	return nil
}

// admission is the scheduler's in-memory record of a command handed to the
// actuator.
type admission struct {
	attempt   int
	token     string
	resources commands.ResourceSet
	cancel    context.CancelFunc
}
