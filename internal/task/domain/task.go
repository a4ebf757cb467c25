// Package domain models recurring work as immutable task values. Advancing
// or toggling a task yields a replacement instance, which keeps due-time
// computation referentially safe under concurrent scheduling.
package domain

import (
	"errors"
	"time"
)

// Frequency enumerates supported recurrence intervals.
type Frequency string

const (
	Once   Frequency = "ONCE"
	Hourly Frequency = "HOURLY"
	Daily  Frequency = "DAILY"
	Weekly Frequency = "WEEKLY"
	Custom Frequency = "CUSTOM"
)

// NeverAgain is the sentinel next-run value for exhausted one-shot tasks.
var NeverAgain = time.Unix(1<<62-1, 0).UTC()

var ErrDisabled = errors.New("task is disabled")

const defaultCustomInterval = time.Hour

// Task describes one registered recurring job.
type Task struct {
	ID             string
	Frequency      Frequency
	CustomInterval time.Duration
	Priority       int
	NextRunAt      time.Time
	LastRunAt      *time.Time
	RetryCount     int
	MaxRetries     int
	TimeoutSeconds int
	Enabled        bool
}

// IsDue reports whether the task should run at now.
func (t Task) IsDue(now time.Time) bool {
	return t.Enabled && !now.Before(t.NextRunAt)
}

// Interval is the recurrence step for this task's frequency.
func (t Task) Interval() time.Duration {
	switch t.Frequency {
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	case Custom:
		if t.CustomInterval > 0 {
			return t.CustomInterval
		}
		return defaultCustomInterval
	default:
		return 0
	}
}

// Timeout is the per-execution deadline.
func (t Task) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Advance returns the successor instance after a successful run at now.
// One-shot tasks advance to the never-again sentinel.
func (t Task) Advance(now time.Time) Task {
	next := t
	next.LastRunAt = &now
	next.RetryCount = 0
	if t.Frequency == Once {
		next.NextRunAt = NeverAgain
		next.Enabled = false
		return next
	}
	next.NextRunAt = now.Add(t.Interval())
	return next
}

// RecordFailure counts one failed attempt. The second return is false once
// MaxRetries is exhausted; the run is then permanently failed for this
// cycle and the task advances as if it had run.
func (t Task) RecordFailure(now time.Time) (Task, bool) {
	next := t
	next.RetryCount++
	if next.RetryCount > next.MaxRetries {
		next = next.Advance(now)
		return next, false
	}
	return next, true
}

// WithEnabled toggles the task, yielding a replacement instance.
func (t Task) WithEnabled(enabled bool) Task {
	next := t
	next.Enabled = enabled
	return next
}

// Due filters the registered tasks down to those runnable at now, ordered
// by priority (highest first).
func Due(tasks []Task, now time.Time) []Task {
	var due []Task
	for _, t := range tasks {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].Priority > due[j-1].Priority; j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	return due
}
