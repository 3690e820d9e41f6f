package metrics

import (
	"sync"
	"time"

	"warden/internal/commands"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "warden_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	commandsSubmitted *prometheus.CounterVec
	commandsAdmitted  *prometheus.CounterVec
	admissionSkips    *prometheus.CounterVec
	commandsCompleted *prometheus.CounterVec
	commandsReclaimed prometheus.Counter

	resourceHeld *prometheus.GaugeVec

	scanTotal   *prometheus.CounterVec
	scanLatency *prometheus.HistogramVec
)

// Init registers scheduler metrics with the default registry. Helpers are
// no-ops until Init has run.
func Init() {
	registerOnce.Do(func() {
		commandsSubmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_submitted_total",
				Help: "Total submitted commands by action type",
			},
			[]string{"action"},
		)
		commandsAdmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_admitted_total",
				Help: "Total admissions by action type",
			},
			[]string{"action"},
		)
		admissionSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "admission_skips_total",
				Help: "Pending commands left waiting on a held resource, by action type",
			},
			[]string{"action"},
		)
		commandsCompleted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_completed_total",
				Help: "Total completions by action type and status",
			},
			[]string{"action", "status"},
		)
		commandsReclaimed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_reclaimed_total",
				Help: "Total running commands reset to pending by the watchdog",
			},
		)
		resourceHeld = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "resource_held",
				Help: "1 while a running command holds the resource",
			},
			[]string{"resource"},
		)
		scanTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scans_total",
				Help: "Total scheduler scans by result",
			},
			[]string{"result"},
		)
		scanLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scan_latency_seconds",
				Help:    "Scheduler scan latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			commandsSubmitted,
			commandsAdmitted,
			admissionSkips,
			commandsCompleted,
			commandsReclaimed,
			resourceHeld,
			scanTotal,
			scanLatency,
		)
	})
}

func IncSubmitted(action string) {
	if commandsSubmitted != nil {
		commandsSubmitted.WithLabelValues(actionLabel(action)).Inc()
	}
}

func IncAdmitted(action string) {
	if commandsAdmitted != nil {
		commandsAdmitted.WithLabelValues(actionLabel(action)).Inc()
	}
}

// IncConflict counts a pending command skipped because a resource it needs is held.
func IncConflict(action string) {
	if admissionSkips != nil {
		admissionSkips.WithLabelValues(actionLabel(action)).Inc()
	}
}

func IncCompleted(action, status string) {
	if commandsCompleted != nil {
		commandsCompleted.WithLabelValues(actionLabel(action), label(status)).Inc()
	}
}

// AddReclaimed increments the reclaim counter by count.
func AddReclaimed(count int) {
	if count <= 0 {
		return
	}
	if commandsReclaimed != nil {
		commandsReclaimed.Add(float64(count))
	}
}

func SetHeld(resource string, held bool) {
	if resourceHeld == nil {
		return
	}
	v := 0.0
	if held {
		v = 1
	}
	resourceHeld.WithLabelValues(label(resource)).Set(v)
}

// ObserveScan records scan duration and result.
func ObserveScan(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if scanTotal != nil {
		scanTotal.WithLabelValues(result).Inc()
	}
	if scanLatency != nil {
		scanLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// actionLabel keeps label cardinality bounded; action types come from remote callers.
func actionLabel(action string) string {
	if commands.KnownAction(action) {
		return action
	}
	return "other"
}
