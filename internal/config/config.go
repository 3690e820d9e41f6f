package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ActuatorSimulate = "simulate"
	ActuatorWebhook  = "webhook"
)

type Config struct {
	HTTPAddr             string
	DBDriver             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	WatchdogInterval      time.Duration
	SafetyMargin          time.Duration
	PreconditionTimeout   time.Duration
	ReclaimOrphansOnStart bool
	EstimatesFile         string

	ActuatorMode   string
	ActuatorURL    string
	NotifyWebhooks bool

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DBDriver:             strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DatabaseURL:          getenv("DATABASE_URL", "warden.db"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		EstimatesFile:        getenv("ESTIMATES_FILE", ""),
		ActuatorMode:         strings.ToLower(getenv("ACTUATOR_MODE", ActuatorSimulate)),
		ActuatorURL:          getenv("ACTUATOR_URL", ""),
		NotifyWebhooks:       getenv("NOTIFY_WEBHOOKS", "true") == "true",
		LogFile:              getenv("LOG_FILE", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.WatchdogInterval, err = getDuration("WATCHDOG_INTERVAL", 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.SafetyMargin, err = getDuration("SAFETY_MARGIN", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.PreconditionTimeout, err = getDuration("PRECONDITION_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ReclaimOrphansOnStart, err = getBool("RECLAIM_ORPHANS_ON_START", true); err != nil {
		return cfg, err
	}
	if cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 20); err != nil {
		return cfg, err
	}
	if cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", 5); err != nil {
		return cfg, err
	}

	cfg.JWTSecret = getenv("JWT_SECRET", "")
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("missing env: JWT_SECRET")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	switch c.ActuatorMode {
	case ActuatorSimulate:
	case ActuatorWebhook:
		if c.ActuatorURL == "" {
			return fmt.Errorf("ACTUATOR_URL is required when ACTUATOR_MODE=webhook")
		}
	default:
		return fmt.Errorf("ACTUATOR_MODE must be simulate or webhook, got %q", c.ActuatorMode)
	}
	if c.WatchdogInterval <= 0 {
		return fmt.Errorf("WATCHDOG_INTERVAL must be positive")
	}
	if c.SafetyMargin < 0 {
		return fmt.Errorf("SAFETY_MARGIN must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
