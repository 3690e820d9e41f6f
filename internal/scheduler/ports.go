package scheduler

import (
	"context"
	"errors"
	"time"

	"warden/internal/commands"
)

var (
	ErrInvalidCommand  = errors.New("invalid command")
	ErrInvalidOutcome  = errors.New("outcome must be done or failed")
	ErrNotAdmitted     = errors.New("command is not admitted")
	ErrStaleCompletion = errors.New("completion from a reclaimed attempt")
)

// Store is the durable command store the scheduler works against.
type Store interface {
	Insert(ctx context.Context, cmd *commands.Command) (uint64, error)
	Pending(ctx context.Context) ([]commands.Command, error)
	Get(ctx context.Context, id uint64) (*commands.Command, error)
	UpdateStatus(ctx context.Context, id uint64, u commands.StatusUpdate) error
	RunningOverdue(ctx context.Context, now time.Time) ([]commands.Command, error)
	Running(ctx context.Context) ([]commands.Command, error)
	ClearAll(ctx context.Context) error
}

var _ Store = (*commands.Repo)(nil)

// Actuator performs admitted commands. OnAdmitted runs on its own goroutine
// and should lead to one completion of the attempt, including when the
// action cannot start. ctx is cancelled if the admission is reclaimed or
// cleared; an attempt that never reports is reclaimed at its deadline.
type Actuator interface {
	OnAdmitted(ctx context.Context, adm *Admission)
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, adm *Admission)

func (f ActuatorFunc) OnAdmitted(ctx context.Context, adm *Admission) { f(ctx, adm) }

// Observer is told about every command that reaches done or failed.
type Observer interface {
	CommandFinished(ctx context.Context, cmd commands.Command)
}

// Outcome is what an actuator reports for one admission.
type Outcome struct {
	Status string
	Reason string
}

func Succeeded() Outcome { return Outcome{Status: commands.StatusDone} }

func Failed(reason string) Outcome {
	return Outcome{Status: commands.StatusFailed, Reason: reason}
}

func (o Outcome) valid() bool {
	return o.Status == commands.StatusDone || o.Status == commands.StatusFailed
}
