package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const (
	ActionCapturePhoto = "capture-photo"
	ActionCaptureVideo = "capture-video"
	ActionCaptureAudio = "capture-audio"
	ActionReadPosition = "read-position"
	ActionRing         = "ring"
	ActionVibrate      = "vibrate"
)

// Command is one requested remote action. Rows are append-only; only the
// scheduler and the watchdog move Status.
type Command struct {
	ID         uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ActionType string            `gorm:"type:text;not null" json:"action_type"`
	Parameters datatypes.JSONMap `json:"parameters"`

	// where the transport layer should deliver results (chat address, webhook url)
	ResultDestination string `gorm:"type:text;not null;default:''" json:"result_destination"`

	Status    string  `gorm:"index;not null;default:'pending'" json:"status"` // pending/running/done/failed
	Attempt   int     `gorm:"not null;default:0" json:"attempt"`
	LastError *string `gorm:"type:text" json:"last_error,omitempty"`

	SubmittedAt      time.Time  `gorm:"not null" json:"submitted_at"`
	LastUpdatedAt    time.Time  `gorm:"not null" json:"last_updated_at"`
	ExpectedFinishAt *time.Time `json:"expected_finish_at,omitempty"`
}

func (Command) TableName() string { return "commands" }

// Finished reports whether the command reached a terminal status.
func (c Command) Finished() bool {
	return c.Status == StatusDone || c.Status == StatusFailed
}

// MaxDeclaredDuration bounds any declared duration so deadlines stay
// representable.
const MaxDeclaredDuration = 366 * 24 * time.Hour

var ErrInvalidDuration = errors.New("invalid duration parameter")

// DeclaredDuration returns the "duration" parameter. Numbers are seconds;
// strings may be seconds ("120") or a Go duration ("2m") for chat-style
// callers. Rows read back from the store carry numbers as json.Number.
// ok is false when no duration was given.
func (c Command) DeclaredDuration() (d time.Duration, ok bool, err error) {
	v, present := c.Parameters["duration"]
	if !present || v == nil {
		return 0, false, nil
	}
	var sec float64
	switch n := v.(type) {
	case json.Number:
		sec, err = n.Float64()
	case float64:
		sec = n
	case float32:
		sec = float64(n)
	case int:
		sec = float64(n)
	case int64:
		sec = float64(n)
	case string:
		n = strings.TrimSpace(n)
		if sec, err = strconv.ParseFloat(n, 64); err != nil {
			var pd time.Duration
			if pd, err = time.ParseDuration(n); err == nil {
				sec = pd.Seconds()
			}
		}
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return 0, true, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
	}
	if math.IsNaN(sec) || sec <= 0 {
		return 0, true, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	if sec > MaxDeclaredDuration.Seconds() {
		return 0, true, fmt.Errorf("%w: longer than %s", ErrInvalidDuration, MaxDeclaredDuration)
	}
	return time.Duration(sec * float64(time.Second)), true, nil
}

// DurationParam is DeclaredDuration with invalid values treated as absent.
func (c Command) DurationParam() (time.Duration, bool) {
	d, ok, err := c.DeclaredDuration()
	if err != nil || !ok {
		return 0, false
	}
	return d, true
}
