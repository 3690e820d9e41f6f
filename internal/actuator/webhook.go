package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"warden/internal/scheduler"
)

// Webhook hands admissions to an external executor over HTTP. The executor
// reports back through POST /commands/{id}/complete with the attempt it was
// given. If the handoff itself fails the admission is completed as failed.
type Webhook struct {
	url    string
	client *http.Client
	logger *log.Logger
}

var _ scheduler.Actuator = (*Webhook)(nil)

type admissionPayload struct {
	ID                uint64         `json:"id"`
	Attempt           int            `json:"attempt"`
	Token             string         `json:"token"`
	ActionType        string         `json:"action_type"`
	Parameters        map[string]any `json:"parameters"`
	ResultDestination string         `json:"result_destination"`
	ExpectedFinishAt  *time.Time     `json:"expected_finish_at,omitempty"`
}

func NewWebhook(url string, logger *log.Logger) *Webhook {
	if logger == nil {
		logger = log.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (w *Webhook) OnAdmitted(ctx context.Context, adm *scheduler.Admission) {
	err := w.deliver(ctx, adm)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	w.logger.Printf("actuator: handoff of command %d failed: %v", adm.Command.ID, err)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := adm.Done(rctx, scheduler.Failed("actuator unreachable: "+err.Error())); err != nil {
		w.logger.Printf("actuator: report command %d: %v", adm.Command.ID, err)
	}
}

func (w *Webhook) deliver(ctx context.Context, adm *scheduler.Admission) error {
	if w.url == "" {
		return fmt.Errorf("webhook actuator: empty url")
	}
	cmd := adm.Command
	body, err := json.Marshal(admissionPayload{
		ID:                cmd.ID,
		Attempt:           adm.Attempt,
		Token:             adm.Token,
		ActionType:        cmd.ActionType,
		Parameters:        cmd.Parameters,
		ResultDestination: cmd.ResultDestination,
		ExpectedFinishAt:  cmd.ExpectedFinishAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admission-Token", adm.Token)
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook actuator: status %d", resp.StatusCode)
	}
	return nil
}
