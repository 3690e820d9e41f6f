package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warden/internal/commands"
)

type recordingObserver struct {
	got []uint64
}

func (r *recordingObserver) CommandFinished(_ context.Context, cmd commands.Command) {
	r.got = append(r.got, cmd.ID)
}

func failedCommand(dest string) commands.Command {
	reason := "no storage"
	return commands.Command{
		ID:                5,
		ActionType:        commands.ActionCaptureVideo,
		Status:            commands.StatusFailed,
		Attempt:           2,
		LastError:         &reason,
		ResultDestination: dest,
		LastUpdatedAt:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestMultiForwardsInOrder(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	m := NewMulti(a, nil, b)
	m.CommandFinished(context.Background(), commands.Command{ID: 1})
	m.CommandFinished(context.Background(), commands.Command{ID: 2})
	if len(a.got) != 2 || len(b.got) != 2 || b.got[1] != 2 {
		t.Fatalf("unexpected deliveries a=%v b=%v", a.got, b.got)
	}

	var nilMulti *Multi
	nilMulti.CommandFinished(context.Background(), commands.Command{ID: 3})
}

func TestLogWritesResultLine(t *testing.T) {
	var buf bytes.Buffer
	Log{Logger: log.New(&buf, "", 0)}.CommandFinished(context.Background(), failedCommand("chat:1"))
	line := buf.String()
	for _, want := range []string{"[RESULT]", "command=5", "status=failed", "reason=no storage"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestFormatResult(t *testing.T) {
	if got := FormatResult(failedCommand("")); got != "capture-video failed: no storage" {
		t.Fatalf("got %q", got)
	}
	if got := FormatResult(commands.Command{ActionType: "ring", Status: commands.StatusDone}); got != "ring finished" {
		t.Fatalf("got %q", got)
	}
	if got := FormatResult(commands.Command{ActionType: "ring", Status: commands.StatusPending}); got != "ring is pending" {
		t.Fatalf("got %q", got)
	}
}

func TestWebhookPostsToHTTPDestination(t *testing.T) {
	got := make(chan resultPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var p resultPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
	}))
	defer srv.Close()

	NewWebhook(log.New(io.Discard, "", 0)).CommandFinished(context.Background(), failedCommand(srv.URL+"/results"))

	select {
	case p := <-got:
		if p.ID != 5 || p.Status != commands.StatusFailed || p.Reason != "no storage" || p.Attempt != 2 {
			t.Fatalf("unexpected payload %+v", p)
		}
		if p.Text != "capture-video failed: no storage" {
			t.Fatalf("unexpected text %q", p.Text)
		}
	default:
		t.Fatal("webhook not called")
	}
}

func TestWebhookSkipsNonHTTPDestinations(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	wh := NewWebhook(log.New(io.Discard, "", 0))
	for _, dest := range []string{"", "chat:12345", "mailto:ops@example.com", "/relative/path"} {
		wh.CommandFinished(context.Background(), failedCommand(dest))
	}
	if called {
		t.Fatal("non-http destinations must not be posted")
	}
}
