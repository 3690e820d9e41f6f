package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/internal/actuator"
	"warden/internal/auth"
	"warden/internal/commands"
	"warden/internal/config"
	"warden/internal/db"
	httpx "warden/internal/http"
	"warden/internal/logging"
	"warden/internal/metrics"
	"warden/internal/notify"
	"warden/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser := logging.New(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()

	estimator, err := cfg.Estimator()
	if err != nil {
		logger.Fatalf("estimates: %v", err)
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		logger.Fatal(err)
	}

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var act scheduler.Actuator
	switch cfg.ActuatorMode {
	case config.ActuatorWebhook:
		act = actuator.NewWebhook(cfg.ActuatorURL, logger)
	default:
		runner := actuator.NewRunner(
			actuator.WithPreconditionTimeout(cfg.PreconditionTimeout),
			actuator.WithRunnerLogger(logger),
		)
		// no display pipeline in the simulated build; the surface is always ready
		surface := actuator.NewSignal()
		surface.Set()
		actuator.RegisterSimulated(runner, logger, surface)
		act = runner
	}

	observers := []scheduler.Observer{notify.Log{Logger: logger}}
	if cfg.NotifyWebhooks {
		observers = append(observers, notify.NewWebhook(logger))
	}

	repo := &commands.Repo{DB: gdb}
	sched, err := scheduler.New(repo, act,
		scheduler.WithEstimator(estimator),
		scheduler.WithObserver(notify.NewMulti(observers...)),
		scheduler.WithLogger(logger),
		scheduler.WithBaseContext(ctx),
	)
	if err != nil {
		logger.Fatal(err)
	}

	watchdog := scheduler.NewWatchdog(sched,
		scheduler.WithInterval(cfg.WatchdogInterval),
		scheduler.WithStartupReconcile(cfg.ReclaimOrphansOnStart),
		scheduler.WithWatchdogLogger(logger),
	)
	go watchdog.Run(ctx)

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, httpx.Deps{DB: gdb, JWT: jwtSvc, Sched: sched, Repo: repo})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s (db=%s actuator=%s)\n", cfg.HTTPAddr, cfg.DBDriver, cfg.ActuatorMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()

	// graceful shutdown; running rows are picked up by the next start's reconcile
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
