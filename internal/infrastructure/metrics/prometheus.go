// Package metrics exposes workflow engine activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const namespace = "expense_approval"

// Recorder implements port.WorkflowMetrics on a Prometheus registry
type Recorder struct {
	gatherer prometheus.Gatherer

	transitions *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var _ port.WorkflowMetrics = (*Recorder)(nil)

// NewRecorder registers the workflow collectors on reg.
// Tests pass prometheus.NewRegistry() to stay isolated from the default registry.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed expense status transitions",
		}, []string{"from", "to"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Approval decisions received, by verdict",
		}, []string{"decision", "duplicate"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed engine operations, by error kind",
		}, []string{"operation", "reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"operation"}),
	}
}

// ObserveTransition counts a committed status change
func (r *Recorder) ObserveTransition(from, to entity.Status) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveDecision counts a recorded or retried decision
func (r *Recorder) ObserveDecision(decision entity.Decision, duplicate bool) {
	dup := "false"
	if duplicate {
		dup = "true"
	}
	r.decisions.WithLabelValues(string(decision), dup).Inc()
}

// ObserveFailure counts a failed operation
func (r *Recorder) ObserveFailure(operation string, err error) {
	r.failures.WithLabelValues(operation, Reason(err)).Inc()
}

// ObserveDuration records operation latency
func (r *Recorder) ObserveDuration(operation string, elapsed time.Duration) {
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

var reasons = []struct {
	err   error
	label string
}{
	{entity.ErrNoApproverFound, "no_approver"},
	{entity.ErrInvalidApproverRole, "invalid_approver_role"},
	{entity.ErrUnauthorizedApprover, "unauthorized"},
	{entity.ErrConflictingDecision, "conflicting_decision"},
	{entity.ErrExpenseAlreadyFinalized, "finalized"},
	{entity.ErrStepAlreadyResolved, "step_resolved"},
	{entity.ErrInvalidRuleConfiguration, "invalid_rule"},
	{entity.ErrVersionConflict, "version_conflict"},
	{entity.ErrPersistenceFailure, "persistence"},
	{entity.ErrExpenseNotFound, "not_found"},
	{entity.ErrNotAdmin, "not_admin"},
}

// Reason maps an error onto a bounded label set
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}
