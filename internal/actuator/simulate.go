package actuator

import (
	"context"
	"log"
	"time"

	"warden/internal/commands"
)

// Simulated stands in for a hardware pipeline: it logs the action and holds
// it for the declared duration, or def when none is declared.
func Simulated(logger *log.Logger, def time.Duration) Handler {
	if logger == nil {
		logger = log.Default()
	}
	return HandlerFunc(func(ctx context.Context, cmd commands.Command) error {
		d, ok := cmd.DurationParam()
		if !ok {
			d = def
		}
		logger.Printf("actuator: %s for command %d (%s) params=%v", cmd.ActionType, cmd.ID, d, map[string]any(cmd.Parameters))
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// RegisterSimulated installs simulated handlers for the whole catalog.
// Camera actions wait for surface.
func RegisterSimulated(r *Runner, logger *log.Logger, surface Precondition) {
	short := Simulated(logger, 2*time.Second)
	r.Handle(commands.ActionCapturePhoto, short)
	r.Handle(commands.ActionCaptureVideo, Simulated(logger, 10*time.Second))
	r.Handle(commands.ActionCaptureAudio, Simulated(logger, 10*time.Second))
	r.Handle(commands.ActionReadPosition, short)
	r.Handle(commands.ActionRing, Simulated(logger, 5*time.Second))
	r.Handle(commands.ActionVibrate, Simulated(logger, time.Second))

	if surface != nil {
		r.Require(commands.ActionCapturePhoto, surface)
		r.Require(commands.ActionCaptureVideo, surface)
	}
}
