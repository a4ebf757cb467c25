package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/velvetlounge/gatekeeper/internal/access"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	taskdomain "github.com/velvetlounge/gatekeeper/internal/task/domain"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
	"go.uber.org/zap"
)

var tick = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubWorkflows struct {
	sweeps   int
	cleanups int
	sweepErr error
}

func (s *stubWorkflows) Intake(ctx context.Context, req workflowdomain.IntakeRequest) (workflowdomain.IntakeResult, error) {
	return workflowdomain.IntakeResult{}, nil
}

func (s *stubWorkflows) RulesAccepted(ctx context.Context, externalID string) (memberdomain.Member, bool, error) {
	return memberdomain.Member{}, false, nil
}

func (s *stubWorkflows) Verify(ctx context.Context, externalID, identityNumber string) (memberdomain.Member, error) {
	return memberdomain.Member{}, nil
}

func (s *stubWorkflows) Promote(ctx context.Context, actorExternalID, targetExternalID string, requested access.Tier) (memberdomain.Member, error) {
	return memberdomain.Member{}, nil
}

func (s *stubWorkflows) Leave(ctx context.Context, externalID string) (memberdomain.Member, error) {
	return memberdomain.Member{}, nil
}

func (s *stubWorkflows) Permissions(ctx context.Context, externalID string) (access.PermissionSet, memberdomain.Member, error) {
	return access.PermissionSet{}, memberdomain.Member{}, nil
}

func (s *stubWorkflows) IssueInvite(ctx context.Context, req workflowdomain.IssueInviteRequest) (string, error) {
	return "", nil
}

func (s *stubWorkflows) VerificationSweep(ctx context.Context) (workflowdomain.SweepReport, error) {
	s.sweeps++
	if s.sweepErr != nil {
		return workflowdomain.SweepReport{Failed: 1}, s.sweepErr
	}
	return workflowdomain.SweepReport{Scanned: 3, Removed: 1}, nil
}

func (s *stubWorkflows) Cleanup(ctx context.Context) (workflowdomain.CleanupReport, error) {
	s.cleanups++
	return workflowdomain.CleanupReport{TokensLapsed: 2}, nil
}

type stubEvents struct {
	mu      sync.Mutex
	emitted []eventdomain.EmitRequest
}

func (s *stubEvents) Emit(ctx context.Context, req eventdomain.EmitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, req)
	return nil
}

func (s *stubEvents) ListByEntity(ctx context.Context, entityID string) ([]eventdomain.AccessEvent, error) {
	return nil, nil
}

func (s *stubEvents) lastOfType(eventType string) (eventdomain.EmitRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.emitted) - 1; i >= 0; i-- {
		if s.emitted[i].EventType == eventType {
			return s.emitted[i], true
		}
	}
	return eventdomain.EmitRequest{}, false
}

func (s *stubEvents) countType(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, e := range s.emitted {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *stubWorkflows, *stubEvents, *clock.FakeClock) {
	t.Helper()
	wf := &stubWorkflows{}
	ev := &stubEvents{}
	fc := clock.NewFakeClock(tick)
	s, err := New(Params{
		Log:         zap.NewNop(),
		WorkflowSvc: wf,
		EventSvc:    ev,
		Clock:       fc,
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, wf, ev, fc
}

func taskByID(t *testing.T, s *Scheduler, id string) taskdomain.Task {
	t.Helper()
	for _, task := range s.Tasks() {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not registered", id)
	return taskdomain.Task{}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceRunsDueJobsAndAdvances(t *testing.T) {
	s, wf, ev, _ := newTestScheduler(t, Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if wf.sweeps != 1 || wf.cleanups != 1 {
		t.Fatalf("expected both jobs to run, got sweeps=%d cleanups=%d", wf.sweeps, wf.cleanups)
	}

	sweep := taskByID(t, s, JobVerificationSweep)
	if !sweep.NextRunAt.Equal(tick.Add(time.Hour)) {
		t.Fatalf("expected hourly advance, got %v", sweep.NextRunAt)
	}
	cleanup := taskByID(t, s, JobCleanup)
	if !cleanup.NextRunAt.Equal(tick.Add(24 * time.Hour)) {
		t.Fatalf("expected daily advance, got %v", cleanup.NextRunAt)
	}

	if got := ev.countType(eventdomain.TypeTaskDue); got != 2 {
		t.Fatalf("expected 2 task.due events, got %d", got)
	}
	if got := ev.countType(eventdomain.TypeTaskCompleted); got != 2 {
		t.Fatalf("expected 2 task.completed events, got %d", got)
	}
	completed, ok := ev.lastOfType(eventdomain.TypeTaskCompleted)
	if !ok {
		t.Fatal("expected a task.completed event")
	}
	if _, ok := completed.Payload["duration_ms"].(int64); !ok {
		t.Fatalf("expected duration_ms in completed payload, got %+v", completed.Payload)
	}

	// Nothing is due until the clock moves.
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run once: %v", err)
	}
	if wf.sweeps != 1 {
		t.Fatalf("expected no second sweep before the next slot, got %d", wf.sweeps)
	}
}

func TestRunOnceAdvancesOnlyDueTasks(t *testing.T) {
	s, wf, _, fc := newTestScheduler(t, Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	fc.Advance(time.Hour)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if wf.sweeps != 2 {
		t.Fatalf("expected second sweep after an hour, got %d", wf.sweeps)
	}
	if wf.cleanups != 1 {
		t.Fatalf("expected cleanup still on its daily slot, got %d", wf.cleanups)
	}
}

func TestRunOnceRetriesFailedJobUntilExhausted(t *testing.T) {
	s, wf, ev, _ := newTestScheduler(t, Config{EnabledJobs: []string{JobVerificationSweep}})
	wf.sweepErr = errors.New("sweep failed")

	// MaxRetries is 2: two retries stay due, the third failure advances.
	for attempt := 1; attempt <= 2; attempt++ {
		if err := s.RunOnce(context.Background()); err == nil {
			t.Fatalf("attempt %d: expected tick error", attempt)
		}
		task := taskByID(t, s, JobVerificationSweep)
		if !task.NextRunAt.Equal(tick) {
			t.Fatalf("attempt %d: expected task to stay due, got %v", attempt, task.NextRunAt)
		}
		if task.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, task.RetryCount)
		}
	}

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected tick error on final attempt")
	}
	task := taskByID(t, s, JobVerificationSweep)
	if !task.NextRunAt.Equal(tick.Add(time.Hour)) {
		t.Fatalf("expected exhausted task to advance, got %v", task.NextRunAt)
	}
	if got := ev.countType(eventdomain.TypeTaskFailed); got != 1 {
		t.Fatalf("expected one task.failed event, got %d", got)
	}
	failed, ok := ev.lastOfType(eventdomain.TypeTaskFailed)
	if !ok {
		t.Fatal("expected a task.failed event")
	}
	if got := failed.Payload["retry_count"]; got != 3 {
		t.Fatalf("expected failed payload to carry the exhausted attempt count, got %v", got)
	}
	if wf.sweeps != 3 {
		t.Fatalf("expected three attempts, got %d", wf.sweeps)
	}
}

func TestRunOnceCountsTimeoutAsFailedAttempt(t *testing.T) {
	s, _, ev, _ := newTestScheduler(t, Config{EnabledJobs: []string{"slow"}})
	var runs int
	s.register(taskdomain.Task{
		ID:             "slow",
		Frequency:      taskdomain.Hourly,
		NextRunAt:      tick,
		MaxRetries:     2,
		TimeoutSeconds: 1,
		Enabled:        true,
	}, func(ctx context.Context) (int, error) {
		runs++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	// A deadline never fails the tick, but the attempt is not a success.
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected timeout to stay out of the tick error, got %v", err)
	}
	task := taskByID(t, s, "slow")
	if !task.NextRunAt.Equal(tick) {
		t.Fatalf("expected timed-out task to stay due, got %v", task.NextRunAt)
	}
	if task.RetryCount != 1 {
		t.Fatalf("expected one failed attempt recorded, got %d", task.RetryCount)
	}
	if got := ev.countType(eventdomain.TypeTaskCompleted); got != 0 {
		t.Fatalf("expected no task.completed event for a timeout, got %d", got)
	}
	if got := ev.countType(eventdomain.TypeTaskFailed); got != 0 {
		t.Fatalf("expected retries left, got %d task.failed events", got)
	}

	// Still due, so the next tick retries it.
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if runs != 2 {
		t.Fatalf("expected a retry on the next tick, got %d runs", runs)
	}
	if got := taskByID(t, s, "slow").RetryCount; got != 2 {
		t.Fatalf("expected two failed attempts recorded, got %d", got)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	s, wf, _, _ := newTestScheduler(t, Config{EnabledJobs: []string{JobCleanup}})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if wf.sweeps != 0 {
		t.Fatalf("expected verification sweep disabled, got %d runs", wf.sweeps)
	}
	if wf.cleanups != 1 {
		t.Fatalf("expected cleanup to run, got %d", wf.cleanups)
	}
}
