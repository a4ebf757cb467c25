// Package scheduler drives every time-based lifecycle transition. A single
// logical tick evaluates the registered tasks, runs the due ones with a
// per-job timeout and aggregates failures without blocking other jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/velvetlounge/gatekeeper/internal/clock"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	obsmetrics "github.com/velvetlounge/gatekeeper/internal/observability/metrics"
	taskdomain "github.com/velvetlounge/gatekeeper/internal/task/domain"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobVerificationSweep = "verification_sweep"
	JobCleanup           = "cleanup"

	tickLockKey = "gatekeeper:scheduler:tick"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

// errJobTimedOut marks a run that hit its per-job deadline. It counts as a
// failed attempt for the task but never fails the tick.
var errJobTimedOut = errors.New("job timed out")

type Params struct {
	fx.In

	Log         *zap.Logger
	WorkflowSvc workflowdomain.Service
	EventSvc    eventdomain.Service
	Clock       clock.Clock
	Locker      *Locker `optional:"true"`
	Config      Config  `optional:"true"`
}

// handler runs one job and reports how many items it processed.
type handler func(ctx context.Context) (int, error)

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	locker    *Locker
	workflows workflowdomain.Service
	events    eventdomain.Service

	mu       sync.Mutex
	tasks    map[string]taskdomain.Task
	handlers map[string]handler
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.WorkflowSvc == nil || p.EventSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()

	s := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       cfg,
		clock:     p.Clock,
		locker:    p.Locker,
		workflows: p.WorkflowSvc,
		events:    p.EventSvc,
		tasks:     make(map[string]taskdomain.Task),
		handlers:  make(map[string]handler),
	}

	now := p.Clock.Now()
	s.register(taskdomain.Task{
		ID:             JobVerificationSweep,
		Frequency:      taskdomain.Hourly,
		Priority:       10,
		NextRunAt:      now,
		MaxRetries:     2,
		TimeoutSeconds: 60,
		Enabled:        s.isJobEnabled(JobVerificationSweep),
	}, s.verificationSweepJob)
	s.register(taskdomain.Task{
		ID:             JobCleanup,
		Frequency:      taskdomain.Daily,
		Priority:       5,
		NextRunAt:      now,
		MaxRetries:     2,
		TimeoutSeconds: 120,
		Enabled:        s.isJobEnabled(JobCleanup),
	}, s.cleanupJob)

	return s, nil
}

// Register adds a task with its handler. Registered IDs are replaced.
func (s *Scheduler) register(t taskdomain.Task, fn handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	s.handlers[t.ID] = fn
}

// Tasks returns a snapshot of the registered task instances.
func (s *Scheduler) Tasks() []taskdomain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]taskdomain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// RunOnce executes one logical tick: take the replica lock, run every due
// task in priority order, advance or retry each, and aggregate the
// failures.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, tickLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("tick lock unavailable, running unlocked", zap.Error(err))
		} else if !ok {
			s.log.Debug("another replica owns the tick")
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(parent, tickLockKey, token); err != nil {
					s.log.Warn("failed to release tick lock", zap.Error(err))
				}
			}()
		}
	}

	now := s.clock.Now()
	due := taskdomain.Due(s.Tasks(), now)

	var err error
	for _, t := range due {
		s.mu.Lock()
		fn := s.handlers[t.ID]
		s.mu.Unlock()
		if fn == nil {
			continue
		}
		s.emitTaskEvent(parent, eventdomain.TypeTaskDue, t, nil, 0)
		elapsed, runErr := s.runJob(parent, t, fn)
		s.settle(parent, t.ID, runErr, elapsed)
		if !errors.Is(runErr, errJobTimedOut) {
			err = errors.Join(err, runErr)
		}
	}
	return err
}

// RunForever ticks at the configured interval until the context ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, t taskdomain.Task, fn handler) (time.Duration, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(parent, t.Timeout())
	defer cancel()

	run := s.newJobRun(t.ID)
	s.logJobStart(run)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(t.ID)

	processed, err := fn(ctx)
	elapsed := time.Since(started)
	run.AddProcessed(processed)
	schedMetrics.ObserveJobDuration(t.ID, elapsed)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(run)
	if err == nil {
		return elapsed, nil
	}

	schedMetrics.IncJobError(t.ID, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(t.ID)
		s.log.Warn("job timed out",
			zap.String("job", t.ID),
			zap.Duration("timeout", t.Timeout()),
			zap.Error(err),
		)
		return elapsed, fmt.Errorf("%s: %w", t.ID, errJobTimedOut)
	}

	return elapsed, fmt.Errorf("%s: %w", t.ID, err)
}

// settle replaces the task instance after a run: advance on success, count
// the attempt on failure, and advance anyway once retries are exhausted.
func (s *Scheduler) settle(ctx context.Context, id string, runErr error, elapsed time.Duration) {
	now := s.clock.Now()

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	var (
		next      taskdomain.Task
		exhausted bool
		attempts  int
	)
	if runErr == nil {
		next = t.Advance(now)
	} else {
		var retry bool
		next, retry = t.RecordFailure(now)
		exhausted = !retry
		// Advance on exhaustion resets RetryCount, so keep the real
		// attempt count for the failure event.
		attempts = t.RetryCount + 1
	}
	s.tasks[id] = next
	s.mu.Unlock()

	switch {
	case runErr == nil:
		s.emitTaskEvent(ctx, eventdomain.TypeTaskCompleted, next, nil, elapsed)
	case exhausted:
		failed := next
		failed.RetryCount = attempts
		s.emitTaskEvent(ctx, eventdomain.TypeTaskFailed, failed, runErr, elapsed)
	}
}

func (s *Scheduler) verificationSweepJob(ctx context.Context) (int, error) {
	report, err := s.workflows.VerificationSweep(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobVerificationSweep, "members", report.Scanned)
	return report.Removed + report.AccessGranted + report.AccessRevoked, err
}

func (s *Scheduler) cleanupJob(ctx context.Context) (int, error) {
	report, err := s.workflows.Cleanup(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobCleanup, "invite_tokens", report.TokensLapsed)
	schedMetrics.AddBatchProcessed(JobCleanup, "members", report.MembersRemoved)
	return report.TokensLapsed + report.MembersRemoved, err
}

func (s *Scheduler) emitTaskEvent(ctx context.Context, eventType string, t taskdomain.Task, runErr error, elapsed time.Duration) {
	payload := map[string]any{
		"frequency":   string(t.Frequency),
		"next_run_at": t.NextRunAt,
		"retry_count": t.RetryCount,
	}
	if eventType != eventdomain.TypeTaskDue {
		payload["duration_ms"] = elapsed.Milliseconds()
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	if err := s.events.Emit(ctx, eventdomain.EmitRequest{
		EntityID:  t.ID,
		EventType: eventType,
		Payload:   payload,
		DedupeKey: fmt.Sprintf("%s:%s:%d", eventType, t.ID, t.NextRunAt.Unix()),
	}); err != nil {
		s.log.Warn("failed to emit task event",
			zap.String("event_type", eventType),
			zap.String("job", t.ID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
