package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"warden/internal/commands"
	"warden/internal/scheduler"
)

// Webhook posts the outcome of a finished command to its result
// destination when that destination is an http(s) URL. Other destinations
// (chat addresses) belong to the transport layer and are skipped.
type Webhook struct {
	client *http.Client
	logger *log.Logger
}

var _ scheduler.Observer = (*Webhook)(nil)

type resultPayload struct {
	ID         uint64    `json:"id"`
	ActionType string    `json:"action_type"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Attempt    int       `json:"attempt"`
	FinishedAt time.Time `json:"finished_at"`
	Text       string    `json:"text"`
}

func NewWebhook(logger *log.Logger) *Webhook {
	if logger == nil {
		logger = log.Default()
	}
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (w *Webhook) CommandFinished(ctx context.Context, cmd commands.Command) {
	if !isHTTPDestination(cmd.ResultDestination) {
		return
	}
	if err := w.post(ctx, cmd); err != nil {
		w.logger.Printf("notify: result of command %d to %s: %v", cmd.ID, cmd.ResultDestination, err)
	}
}

func (w *Webhook) post(ctx context.Context, cmd commands.Command) error {
	p := resultPayload{
		ID:         cmd.ID,
		ActionType: cmd.ActionType,
		Status:     cmd.Status,
		Attempt:    cmd.Attempt,
		FinishedAt: cmd.LastUpdatedAt,
		Text:       FormatResult(cmd),
	}
	if cmd.LastError != nil {
		p.Reason = *cmd.LastError
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cmd.ResultDestination, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

// FormatResult renders the human-readable line the transport shows to the
// requester.
func FormatResult(cmd commands.Command) string {
	switch cmd.Status {
	case commands.StatusDone:
		return fmt.Sprintf("%s finished", cmd.ActionType)
	case commands.StatusFailed:
		if cmd.LastError != nil && *cmd.LastError != "" {
			return fmt.Sprintf("%s failed: %s", cmd.ActionType, *cmd.LastError)
		}
		return fmt.Sprintf("%s failed", cmd.ActionType)
	default:
		return fmt.Sprintf("%s is %s", cmd.ActionType, cmd.Status)
	}
}

func isHTTPDestination(dest string) bool {
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
