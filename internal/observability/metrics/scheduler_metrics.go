package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	invitedomain "github.com/velvetlounge/gatekeeper/internal/invite/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	"gorm.io/gorm"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeConflict         = "conflict"
	SchedulerErrorTypePrecondition     = "precondition"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeCollaborator     = "collaborator"
)

// Sweep stages for error attribution.
const (
	StageIntake            = "intake"
	StageRulesAccepted     = "rules_accepted"
	StageVerificationSweep = "verification_sweep"
	StageInviteCleanup     = "invite_cleanup"
	StageMemberCleanup     = "member_cleanup"
)

// SchedulerMetrics captures lifecycle scheduler health signals.
type SchedulerMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	batchProcessed    *prometheus.CounterVec
	runLoopLag        prometheus.Observer
	memberTransitions *prometheus.CounterVec
	sweepErrors       *prometheus.CounterVec
}

// Config carries const labels stamped onto every scheduler metric.
type Config struct {
	ServiceName string
	Environment string
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "gatekeeper"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "gatekeeper_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to keep lifecycle sweeps within their windows.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts counted as failed attempts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_scheduler_batch_processed_total",
		Help:        "Scheduler batch items processed per job and resource.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "gatekeeper_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	memberTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_member_transition_total",
		Help:        "Member lifecycle transitions applied by workflows.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatekeeper_sweep_error_total",
		Help:        "Per-item sweep errors by stage and type.",
		ConstLabels: constLabels,
	}, []string{"stage", "error_type"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		memberTransitions,
		sweepErrors,
	)

	return &SchedulerMetrics{
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobTimeouts:       jobTimeouts,
		jobErrors:         jobErrors,
		batchProcessed:    batchProcessed,
		runLoopLag:        runLoopLag,
		memberTransitions: memberTransitions,
		sweepErrors:       sweepErrors,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerError(err)).Inc()
}

// AddBatchProcessed increments the batch processed counter for a resource by count.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || m.batchProcessed == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// IncMemberTransition counts one applied member transition.
func (m *SchedulerMetrics) IncMemberTransition(from, to string) {
	if m == nil || m.memberTransitions == nil {
		return
	}
	m.memberTransitions.WithLabelValues(from, to).Inc()
}

// IncSweepError counts a per-item sweep error by stage and type.
func (m *SchedulerMetrics) IncSweepError(stage string, err error) {
	if m == nil || m.sweepErrors == nil || err == nil {
		return
	}
	m.sweepErrors.WithLabelValues(stage, ClassifySchedulerError(err)).Inc()
}

// ClassifySchedulerError buckets an error into a low-cardinality reason.
func ClassifySchedulerError(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypePrecondition
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return SchedulerErrorTypeDeadlineExceeded
	case errors.Is(err, memberdomain.ErrStaleMember) || errors.Is(err, invitedomain.ErrStaleToken):
		return SchedulerErrorTypeConflict
	case isDBError(err):
		return SchedulerErrorTypeDB
	default:
		return SchedulerErrorTypePrecondition
	}
}

func isDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}
