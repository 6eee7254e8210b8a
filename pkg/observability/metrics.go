package observability

import (
	"context"
	"strconv"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "astrobot"

// Metrics holds the engine collectors.
type Metrics struct {
	Events          *prometheus.CounterVec
	StepEntries     *prometheus.CounterVec
	InvalidInputs   *prometheus.CounterVec
	ActionResults   *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	ActionsInFlight prometheus.Gauge
	Conflicts       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound events processed, by the mode they were interpreted in.",
		}, []string{"mode"}),
		StepEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_entries_total",
			Help:      "Flow steps and menus entered.",
		}, []string{"flow_id", "step_id", "menu_id"}),
		InvalidInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invalid_inputs_total",
			Help:      "Rejected inputs, by step and whether retries were exhausted.",
		}, []string{"flow_id", "step_id", "exhausted"}),
		ActionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "action_results_total",
			Help:      "Action outcomes.",
		}, []string{"action_id", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_id"}),
		ActionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "actions_in_flight",
			Help:      "Actions currently running.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "session_conflicts_total",
			Help:      "Optimistic session writes that lost a race.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Events, m.StepEntries, m.InvalidInputs, m.ActionResults,
			m.ActionDuration, m.ActionsInFlight, m.Conflicts)
	}
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnInbound: func(_ context.Context, e *domain.InboundEvent) {
			m.Events.WithLabelValues(e.Mode).Inc()
		},
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			m.StepEntries.WithLabelValues(e.FlowID, e.StepID, e.MenuID).Inc()
		},
		OnInvalidInput: func(_ context.Context, e *domain.ValidationEvent) {
			m.InvalidInputs.WithLabelValues(e.FlowID, e.StepID, strconv.FormatBool(e.Exhausted)).Inc()
		},
		OnActionDispatch: func(_ context.Context, _ *domain.ActionEvent) {
			m.ActionsInFlight.Inc()
		},
		OnActionReturn: func(_ context.Context, e *domain.ActionEvent) {
			m.ActionsInFlight.Dec()
			outcome := "success"
			if !e.Success {
				outcome = string(e.Error)
			}
			m.ActionResults.WithLabelValues(e.ActionID, outcome).Inc()
			m.ActionDuration.WithLabelValues(e.ActionID).Observe(e.Duration.Seconds())
		},
		OnConflict: func(_ context.Context, _ *domain.EventBase) {
			m.Conflicts.Inc()
		},
	}
}
