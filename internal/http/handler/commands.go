package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warden/internal/commands"
	"warden/internal/scheduler"

	"github.com/go-chi/chi/v5"
)

type CommandHandler struct {
	Sched *scheduler.Scheduler
	Repo  *commands.Repo
}

type submitReq struct {
	ActionType        string         `json:"action_type"`
	Parameters        map[string]any `json:"parameters"`
	ResultDestination string         `json:"result_destination"`
}

type commandDTO struct {
	ID                uint64         `json:"id"`
	ActionType        string         `json:"action_type"`
	Parameters        map[string]any `json:"parameters"`
	ResultDestination string         `json:"result_destination"`
	Status            string         `json:"status"`
	Attempt           int            `json:"attempt"`
	LastError         *string        `json:"last_error"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	LastUpdatedAt     time.Time      `json:"last_updated_at"`
	ExpectedFinishAt  *time.Time     `json:"expected_finish_at"`
}

func toDTO(c commands.Command) commandDTO {
	params := map[string]any(c.Parameters)
	if params == nil {
		params = map[string]any{}
	}
	return commandDTO{
		ID:                c.ID,
		ActionType:        c.ActionType,
		Parameters:        params,
		ResultDestination: c.ResultDestination,
		Status:            c.Status,
		Attempt:           c.Attempt,
		LastError:         c.LastError,
		SubmittedAt:       c.SubmittedAt,
		LastUpdatedAt:     c.LastUpdatedAt,
		ExpectedFinishAt:  c.ExpectedFinishAt,
	}
}

func (h *CommandHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	id, err := h.Sched.Submit(r.Context(), scheduler.SubmitRequest{
		ActionType:        req.ActionType,
		Parameters:        req.Parameters,
		ResultDestination: req.ResultDestination,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidCommand) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/commands/"+strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", commands.StatusPending, commands.StatusRunning, commands.StatusDone, commands.StatusFailed:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.Repo.List(r.Context(), commands.ListFilter{Status: status, Limit: limit})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	out := make([]commandDTO, 0, len(rows))
	for _, c := range rows {
		out = append(out, toDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CommandHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := commandID(w, r)
	if !ok {
		return
	}
	c, err := h.Repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*c))
}

type completeReq struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Attempt int    `json:"attempt"` // optional fence
}

// Complete is how an external actuator reports an outcome.
func (h *CommandHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := commandID(w, r)
	if !ok {
		return
	}
	var req completeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	out := scheduler.Outcome{
		Status: strings.TrimSpace(strings.ToLower(req.Status)),
		Reason: strings.TrimSpace(req.Reason),
	}

	var err error
	if req.Attempt > 0 {
		err = h.Sched.CompleteAttempt(r.Context(), id, req.Attempt, out)
	} else {
		err = h.Sched.Complete(r.Context(), id, out)
	}
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scheduler.ErrInvalidOutcome):
		http.Error(w, "status must be done or failed", http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrNotAdmitted):
		http.Error(w, "command is not running", http.StatusConflict)
	case errors.Is(err, scheduler.ErrStaleCompletion):
		http.Error(w, "attempt was reclaimed", http.StatusConflict)
	case errors.Is(err, commands.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func (h *CommandHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sched.Snapshot())
}

func (h *CommandHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Sched.ClearAll(r.Context()); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func commandID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
