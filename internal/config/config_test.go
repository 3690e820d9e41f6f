package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"warden/internal/commands"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("WATCHDOG_INTERVAL", "")
	t.Setenv("SAFETY_MARGIN", "")
	t.Setenv("ACTUATOR_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.ActuatorMode != ActuatorSimulate {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.WatchdogInterval != 2*time.Minute || cfg.SafetyMargin != time.Minute {
		t.Fatalf("unexpected timing defaults %+v", cfg)
	}
	if !cfg.ReclaimOrphansOnStart {
		t.Fatal("orphan reclaim should default on")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("WATCHDOG_INTERVAL", "30s")
	t.Setenv("SAFETY_MARGIN", "90s")
	t.Setenv("RECLAIM_ORPHANS_ON_START", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ACTUATOR_MODE", "webhook")
	t.Setenv("ACTUATOR_URL", "http://executor.local/admit")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.WatchdogInterval != 30*time.Second || cfg.SafetyMargin != 90*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ReclaimOrphansOnStart {
		t.Fatal("expected orphan reclaim disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"JWT_SECRET": ""},
		"bad duration":     {"WATCHDOG_INTERVAL": "soon"},
		"zero interval":    {"WATCHDOG_INTERVAL": "0s"},
		"negative margin":  {"SAFETY_MARGIN": "-1s"},
		"bad driver":       {"DB_DRIVER": "mysql"},
		"webhook no url":   {"ACTUATOR_MODE": "webhook", "ACTUATOR_URL": ""},
		"unknown actuator": {"ACTUATOR_MODE": "carrier-pigeon"},
		"bad bool":         {"RECLAIM_ORPHANS_ON_START": "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			t.Setenv("DB_DRIVER", "sqlite")
			t.Setenv("ACTUATOR_MODE", "simulate")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEstimatorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimates.yaml")
	yml := `
safety_margin: 2m
max_duration: 10m
actions:
  capture-photo:
    estimate: 45s
  vibrate:
    default_duration: 3s
  flash-light:
    estimate: 8s
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Config{SafetyMargin: time.Minute, EstimatesFile: path}
	e, err := cfg.Estimator()
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	if e.SafetyMargin != 2*time.Minute || e.MaxDuration != 10*time.Minute {
		t.Fatalf("unexpected margins %+v", e)
	}
	if got := e.Estimate(commands.Command{ActionType: commands.ActionCapturePhoto}); got != 45*time.Second {
		t.Fatalf("photo estimate %s", got)
	}
	vib := commands.Command{ActionType: commands.ActionVibrate, Parameters: map[string]any{"duration": 4}}
	if got := e.Estimate(vib); got != 4*time.Second {
		t.Fatalf("vibrate should now honour its duration, got %s", got)
	}
	if got := e.Estimate(commands.Command{ActionType: "flash-light"}); got != 8*time.Second {
		t.Fatalf("flash-light estimate %s", got)
	}
	long := commands.Command{ActionType: commands.ActionCaptureVideo, Parameters: map[string]any{"duration": 3600}}
	if err := e.Validate(long); !errors.Is(err, commands.ErrInvalidDuration) {
		t.Fatalf("an hour of video is past max_duration, got %v", err)
	}
	if got := e.Estimate(long); got != time.Hour {
		t.Fatalf("declared duration must not be shortened, got %s", got)
	}
}

func TestEstimatorWithoutFileUsesMargin(t *testing.T) {
	e, err := Config{SafetyMargin: 5 * time.Second}.Estimator()
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	if e.SafetyMargin != 5*time.Second {
		t.Fatalf("got %s", e.SafetyMargin)
	}
}

func TestEstimatorRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimates.yaml")
	if err := os.WriteFile(path, []byte("actions:\n  ring:\n    default_duration: forever\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Config{EstimatesFile: path}.Estimator()
	if err == nil || !strings.Contains(err.Error(), "ring.default_duration") {
		t.Fatalf("expected a ring.default_duration error, got %v", err)
	}
	if _, err := (Config{EstimatesFile: filepath.Join(t.TempDir(), "missing.yaml")}).Estimator(); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
