package notify

import (
	"context"
	"log"

	"warden/internal/commands"
	"warden/internal/scheduler"
)

// Multi forwards finished commands to several observers in order.
type Multi struct {
	observers []scheduler.Observer
}

var _ scheduler.Observer = (*Multi)(nil)

func NewMulti(observers ...scheduler.Observer) *Multi {
	return &Multi{observers: observers}
}

func (m *Multi) CommandFinished(ctx context.Context, cmd commands.Command) {
	if m == nil {
		return
	}
	for _, o := range m.observers {
		if o != nil {
			o.CommandFinished(ctx, cmd)
		}
	}
}

// Log writes one line per finished command.
type Log struct {
	Logger *log.Logger
}

func (l Log) CommandFinished(_ context.Context, cmd commands.Command) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[RESULT] command=%d action=%s status=%s dest=%q%s",
		cmd.ID, cmd.ActionType, cmd.Status, cmd.ResultDestination, reasonSuffix(cmd))
}

func reasonSuffix(cmd commands.Command) string {
	if cmd.LastError == nil || *cmd.LastError == "" {
		return ""
	}
	return " reason=" + *cmd.LastError
}
