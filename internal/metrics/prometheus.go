// Package metrics records what a ptables run did, for node_exporter's
// textfile collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/ptables/internal/clock"
	"grimm.is/ptables/internal/firewall"
)

// Skip reasons.
const (
	ReasonUnresolved      = "unresolved"
	ReasonUnderSpecified  = "under_specified"
	ReasonVersionMismatch = "version_mismatch"
	ReasonInvalid         = "invalid_config"
)

// Registry holds the run metrics. Each Registry owns its prometheus
// registry so tests and runs do not share state.
type Registry struct {
	reg *prometheus.Registry

	CommandsTotal *prometheus.CounterVec
	RulesSkipped  *prometheus.CounterVec
	ServicesTotal prometheus.Counter

	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
	LastRunExitCode  prometheus.Gauge
}

// New creates a Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptables_commands_total",
			Help: "Firewall commands issued, by ip version and result",
		}, []string{"version", "result"}),
		RulesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptables_rules_skipped_total",
			Help: "Service rules and exemptions skipped, by reason",
		}, []string{"reason"}),
		ServicesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptables_services_total",
			Help: "Service sections compiled",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptables_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		LastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptables_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptables_last_run_success",
			Help: "1 if the last run completed every phase",
		}),
		LastRunExitCode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptables_last_run_exit_code",
			Help: "Exit code of the last run",
		}),
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Executor counts the commands passing through next.
func (r *Registry) Executor(v firewall.IPVersion, next firewall.Executor) firewall.Executor {
	ok := r.CommandsTotal.WithLabelValues(v.String(), "ok")
	failed := r.CommandsTotal.WithLabelValues(v.String(), "error")
	return firewall.ExecutorFunc(func(ctx context.Context, command string) error {
		err := next.Execute(ctx, command)
		if err != nil {
			failed.Inc()
		} else {
			ok.Inc()
		}
		return err
	})
}

// RecordSkipped counts a skipped rule.
func (r *Registry) RecordSkipped(reason string) {
	r.RulesSkipped.WithLabelValues(reason).Inc()
}

// RecordRun stores the outcome of a run that started at start.
func (r *Registry) RecordRun(start time.Time, exitCode int) {
	now := clock.Now()
	r.LastRunTimestamp.Set(float64(now.Unix()))
	r.LastRunDuration.Set(now.Sub(start).Seconds())
	r.LastRunExitCode.Set(float64(exitCode))
	if exitCode == 0 {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the metrics atomically in the text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
